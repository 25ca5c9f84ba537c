package transport

import (
	"errors"
	"fmt"
)

// PostErrorKind splits outbound send failures into two classes:
// transient errors (rate limits, timeouts, 5xx) are worth retrying,
// permanent errors (bad channel id, bot kicked, forbidden) are not.
type PostErrorKind int

const (
	PostTransient PostErrorKind = iota
	PostPermanent
)

func (k PostErrorKind) String() string {
	if k == PostPermanent {
		return "permanent"
	}
	return "transient"
}

type PostError struct {
	Kind PostErrorKind
	Err  error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post failed (%s): %v", e.Kind, e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

func NewPostError(kind PostErrorKind, err error) *PostError {
	return &PostError{Kind: kind, Err: err}
}

// IsPermanent reports whether err carries a permanent PostError.
// Unclassified errors default to transient: retrying a genuinely broken
// target wastes a few attempts, while not retrying a flaky one loses posts.
func IsPermanent(err error) bool {
	var pe *PostError
	return errors.As(err, &pe) && pe.Kind == PostPermanent
}
