package types

import "errors"

// Lookup errors.
var (
	ErrNotFound       = errors.New("contribution not found")
	ErrParentNotFound = errors.New("parent contribution not found")
)

// Validation errors for incoming contributions.
var (
	ErrMissingImage    = errors.New("image is required")
	ErrNotImage        = errors.New("uploaded file is not an image")
	ErrImageTooLarge   = errors.New("image exceeds the size limit")
	ErrInvalidImageRef = errors.New("invalid image reference")
	ErrInvalidToken    = errors.New("share token must not be empty")
	ErrInvalidLinkage  = errors.New("parent and lineage root must be set together")
	ErrRootOnlyField   = errors.New("prompt and questions may only be set on a lineage root")
	ErrInvalidLocation = errors.New("latitude or longitude out of range")
)

// Storage errors.
var (
	// ErrIntegrity reports a parent or root reference that does not resolve.
	ErrIntegrity = errors.New("lineage data integrity violation")
	// ErrDuplicate reports a share token or image reference collision.
	ErrDuplicate = errors.New("duplicate contribution")
	// ErrDuplicateImage accompanies ErrDuplicate when the image reference
	// is already owned by a committed contribution.
	ErrDuplicateImage = errors.New("image reference already in use")
)

// Kind classifies an error so transports can map it without inspecting
// message text.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

var validationErrors = []error{
	ErrMissingImage,
	ErrNotImage,
	ErrImageTooLarge,
	ErrInvalidImageRef,
	ErrInvalidToken,
	ErrInvalidLinkage,
	ErrRootOnlyField,
	ErrInvalidLocation,
}

// KindOf returns the Kind of err. Errors that wrap none of the sentinels in
// this package are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrParentNotFound):
		return KindNotFound
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return KindValidation
		}
	}
	return KindInternal
}
