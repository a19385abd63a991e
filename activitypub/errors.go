package activitypub

import (
	"errors"
	"fmt"
)

// Parse and validation errors. These never escape the inbox dispatcher;
// they map to a 400 at the boundary.
var (
	ErrParseUTF8       = errors.New("invalid utf-8 in message body")
	ErrParseJSON       = errors.New("message body is not valid json")
	ErrParseActivity   = errors.New("message body is not an activity")
	ErrInvalidActivity = errors.New("activity is missing required fields")
	ErrInvalidMessage  = errors.New("unsupported message type")
)

// Signature errors.
var (
	ErrMalformedSignature   = errors.New("malformed signature header")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

// Fetch errors. The subtypes wrap ErrFetch, so errors.Is(err, ErrFetch)
// holds for all of them.
var (
	ErrFetch             = errors.New("fetch failed")
	ErrObjectGone        = fmt.Errorf("%w: object gone", ErrFetch)
	ErrObjectUnavailable = fmt.Errorf("%w: object unavailable", ErrFetch)
	ErrObjectNotFound    = fmt.Errorf("%w: object not found", ErrFetch)
	ErrInvalidURL        = fmt.Errorf("%w: invalid url", ErrFetch)
	ErrNotAnObject       = fmt.Errorf("%w: response is not an object", ErrFetch)
)

// ErrRemoteActor is returned when a collection URL is derived for an
// actor that has no local profile.
var ErrRemoteActor = errors.New("actor does not belong to a local profile")
