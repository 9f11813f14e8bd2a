// Package service orchestrates contribution writes and lineage reads on
// top of a contribution store, an image store and a lineage resolver.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mesh-intelligence/vault/internal/metrics"
	"github.com/mesh-intelligence/vault/pkg/types"
)

// tokenBytes is the entropy of a share token; tokens are hex encoded.
const tokenBytes = 16

// maxTokenAttempts bounds retries after a share token collision.
const maxTokenAttempts = 3

// Store is the contribution store as the service uses it.
type Store interface {
	Create(ctx context.Context, nc *types.NewContribution) (*types.Contribution, error)
	GetByToken(ctx context.Context, token string) (*types.Contribution, error)
}

// ImageReleaser deletes uploaded images that did not end up referenced by
// a contribution.
type ImageReleaser interface {
	Release(ctx context.Context, ref string) error
}

// LineageResolver resolves a share token to its lineage.
type LineageResolver interface {
	Resolve(ctx context.Context, token string) (*types.Lineage, error)
}

// Recorder receives contribution outcomes.
type Recorder interface {
	ContributionCreated(kind string)
	ContributionFailed(kind string)
}

// Request carries one contribution as submitted by a client. ImageRef is
// the reference returned by image intake. Prompt and Questions are only
// honored for a new root, when ParentToken is empty.
type Request struct {
	ParentToken      string
	ImageRef         string
	Description      string
	Prompt           string
	Questions        [3]string
	Answers          [3]string
	ContributorAgent string
	Location         *types.Location
}

// ContributionService implements contribute and resolve.
type ContributionService struct {
	store    Store
	images   ImageReleaser
	lineage  LineageResolver
	recorder Recorder
	log      *slog.Logger
	newToken func() (string, error)
}

// Option configures a ContributionService.
type Option func(*ContributionService)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *ContributionService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRecorder sets where contribution outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(s *ContributionService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTokenGenerator replaces the share token generator.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *ContributionService) { s.newToken = gen }
}

// New returns a ContributionService. A nil images releaser disables image
// cleanup.
func New(store Store, images ImageReleaser, lineage LineageResolver, opts ...Option) *ContributionService {
	s := &ContributionService{
		store:    store,
		images:   images,
		lineage:  lineage,
		recorder: (*metrics.Metrics)(nil),
		log:      slog.New(slog.DiscardHandler),
		newToken: NewShareToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewShareToken returns 128 random bits, hex encoded.
func NewShareToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Contribute creates a contribution from req.
//
// With no parent token the contribution starts a new lineage and keeps the
// prompt and questions. Otherwise it joins the parent's lineage, and any
// prompt or questions in req are ignored. Unknown parents fail with
// types.ErrParentNotFound. On every failure after the image was accepted
// the image is released, unless the reference already belongs to another
// contribution (types.ErrDuplicateImage).
func (s *ContributionService) Contribute(ctx context.Context, req Request) (*types.Contribution, error) {
	c, err := s.contribute(ctx, req)
	if err != nil {
		s.recorder.ContributionFailed(types.KindOf(err).String())
		// A colliding ref belongs to the committed row that owns it.
		if req.ImageRef != "" && !errors.Is(err, types.ErrDuplicateImage) {
			s.releaseImage(ctx, req.ImageRef)
		}
		return nil, err
	}

	kind := metrics.KindRoot
	if !c.IsRoot() {
		kind = metrics.KindChild
	}
	s.recorder.ContributionCreated(kind)
	s.log.Info("contribution created",
		"id", c.ID, "lineage_root_id", c.LineageRootID, "kind", kind)
	return c, nil
}

func (s *ContributionService) contribute(ctx context.Context, req Request) (*types.Contribution, error) {
	if req.ImageRef == "" {
		return nil, types.ErrMissingImage
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return nil, err
		}
	}

	nc := &types.NewContribution{
		ImageRef:    req.ImageRef,
		Description: req.Description,
		Answers: types.Answers{
			A1: req.Answers[0],
			A2: req.Answers[1],
			A3: req.Answers[2],
		},
		ContributorAgent: strings.TrimSpace(req.ContributorAgent),
		Location:         req.Location,
	}
	if nc.ContributorAgent == "" {
		nc.ContributorAgent = types.DefaultContributorAgent
	}

	if req.ParentToken != "" {
		parent, err := s.store.GetByToken(ctx, req.ParentToken)
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrParentNotFound, req.ParentToken)
		}
		if err != nil {
			return nil, fmt.Errorf("looking up parent: %w", err)
		}
		pid, root := parent.ID, parent.LineageRootID
		nc.ParentID = &pid
		nc.LineageRootID = &root
	} else {
		if p := strings.TrimSpace(req.Prompt); p != "" {
			nc.Prompt = &p
		}
		nc.Questions = types.NewQuestions(
			strings.TrimSpace(req.Questions[0]),
			strings.TrimSpace(req.Questions[1]),
			strings.TrimSpace(req.Questions[2]),
		)
	}

	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, err
		}
		nc.ShareToken = token

		c, err := s.store.Create(ctx, nc)
		if errors.Is(err, types.ErrDuplicate) && !errors.Is(err, types.ErrDuplicateImage) && attempt < maxTokenAttempts {
			s.log.Warn("share token collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("saving contribution: %w", err)
		}
		return c, nil
	}
}

func (s *ContributionService) releaseImage(ctx context.Context, ref string) {
	if s.images == nil {
		return
	}
	// The request context may already be done; cleanup still runs.
	if err := s.images.Release(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn("releasing unused image failed", "image_ref", ref, "error", err)
	}
}

// Lineage resolves the lineage ending at token.
func (s *ContributionService) Lineage(ctx context.Context, token string) (*types.Lineage, error) {
	l, err := s.lineage.Resolve(ctx, token)
	if err != nil {
		if types.KindOf(err) == types.KindInternal {
			s.log.Error("resolving lineage failed", "token", token, "error", err)
		}
		return nil, err
	}
	return l, nil
}
