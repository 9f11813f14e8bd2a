package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mesh-intelligence/vault/internal/images"
	"github.com/mesh-intelligence/vault/internal/service"
	"github.com/mesh-intelligence/vault/pkg/types"
)

// Client-facing messages.
const (
	msgImageRequired    = "Image file is required."
	msgNotImage         = "Not an image! Please upload only images."
	msgInvalidLocation  = "Latitude and longitude must be valid coordinates."
	msgParentNotFound   = "Parent vault not found."
	msgContributeFailed = "Could not save contribution."
	msgVaultNotFound    = "Vault not found."
	msgVaultFailed      = "Server error retrieving vault."
	msgImageNotFound    = "Image not found."
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "vault",
	})
}

// contribute handles a multipart contribution.
// POST /api/contribute
func (s *Server) contribute(c echo.Context) error {
	ctx := c.Request().Context()

	loc, err := parseLocation(c.FormValue("latitude"), c.FormValue("longitude"))
	if err != nil {
		return contributeError(c, http.StatusBadRequest, msgInvalidLocation)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return contributeError(c, http.StatusBadRequest, msgImageRequired)
	}
	f, err := fh.Open()
	if err != nil {
		s.log.Error("opening uploaded file", "error", err)
		return contributeError(c, http.StatusInternalServerError, msgContributeFailed)
	}
	defer f.Close()

	ref, err := images.Accept(ctx, s.images, fh.Filename, f, s.maxSize)
	if err != nil {
		return s.contributeFailure(c, err)
	}

	req := service.Request{
		ParentToken: strings.TrimSpace(c.FormValue("parent_share_token")),
		ImageRef:    ref,
		Description: c.FormValue("description"),
		Prompt:      c.FormValue("imagePrompt"),
		Questions: [3]string{
			c.FormValue("surveyQuestion1"),
			c.FormValue("surveyQuestion2"),
			c.FormValue("surveyQuestion3"),
		},
		Answers: [3]string{
			c.FormValue("surveyAnswer1"),
			c.FormValue("surveyAnswer2"),
			c.FormValue("surveyAnswer3"),
		},
		ContributorAgent: c.Request().UserAgent(),
		Location:         loc,
	}

	created, err := s.svc.Contribute(ctx, req)
	if err != nil {
		return s.contributeFailure(c, err)
	}

	return c.JSON(http.StatusCreated, contributeResponse{
		Success:       true,
		NewShareToken: created.ShareToken,
		NewImageURL:   "/uploads/" + created.ImageRef,
	})
}

func (s *Server) contributeFailure(c echo.Context, err error) error {
	switch types.KindOf(err) {
	case types.KindValidation:
		switch {
		case errors.Is(err, types.ErrNotImage):
			return contributeError(c, http.StatusBadRequest, msgNotImage)
		case errors.Is(err, types.ErrMissingImage):
			return contributeError(c, http.StatusBadRequest, msgImageRequired)
		case errors.Is(err, types.ErrInvalidLocation):
			return contributeError(c, http.StatusBadRequest, msgInvalidLocation)
		case errors.Is(err, types.ErrImageTooLarge):
			return contributeError(c, http.StatusRequestEntityTooLarge, err.Error())
		}
		return contributeError(c, http.StatusBadRequest, err.Error())
	case types.KindNotFound:
		return contributeError(c, http.StatusNotFound, msgParentNotFound)
	default:
		s.log.Error("contribution failed", "error", err)
		return contributeError(c, http.StatusInternalServerError, msgContributeFailed)
	}
}

func contributeError(c echo.Context, code int, msg string) error {
	return c.JSON(code, contributeResponse{Success: false, Error: msg})
}

// parseLocation accepts both coordinates or neither.
func parseLocation(lat, lon string) (*types.Location, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, types.ErrInvalidLocation
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, types.ErrInvalidLocation
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, types.ErrInvalidLocation
	}
	loc := &types.Location{Latitude: la, Longitude: lo}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

// vault returns the lineage ending at a share token.
// GET /api/vault/:share_token
func (s *Server) vault(c echo.Context) error {
	token := c.Param("share_token")

	l, err := s.svc.Lineage(c.Request().Context(), token)
	if errors.Is(err, types.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: msgVaultNotFound})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgVaultFailed})
	}
	return c.JSON(http.StatusOK, NewVaultResponse(l))
}

// mapLatest lists the newest located contributions.
// GET /api/map/latest
func (s *Server) mapLatest(c echo.Context) error {
	list, err := s.lister.LatestWithLocation(c.Request().Context(), s.latestLimit)
	if err != nil {
		s.log.Error("listing located contributions", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not load map data.")
	}

	out := make([]MapEntry, 0, len(list))
	for _, ct := range list {
		if ct.Location == nil {
			continue
		}
		out = append(out, MapEntry{
			ID:               ct.ID,
			ShareToken:       ct.ShareToken,
			ImageDescription: ct.Description,
			Latitude:         ct.Location.Latitude,
			Longitude:        ct.Location.Longitude,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// upload streams a stored image.
// GET /uploads/:ref
func (s *Server) upload(c echo.Context) error {
	ref := c.Param("ref")

	rc, err := s.images.Open(c.Request().Context(), ref)
	if errors.Is(err, images.ErrNoSuchImage) || errors.Is(err, types.ErrInvalidImageRef) {
		return echo.NewHTTPError(http.StatusNotFound, msgImageNotFound)
	}
	if err != nil {
		s.log.Error("opening image", "image_ref", ref, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, msgImageNotFound)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	// References are never reused, so the payload behind one never changes.
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, contentType, rc)
}
