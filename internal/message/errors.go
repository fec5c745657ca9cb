package message

import "errors"

// Outcome taxonomy. Stages wrap these with fmt.Errorf and callers match with
// errors.Is. None of them is fatal to the hosting process.
var (
	// ErrEmpty means nothing eligible was found. It is not a failure; capture
	// joins it with the more specific reason (unsupported type, size cap).
	ErrEmpty = errors.New("nothing to transfer")

	ErrInvalidPayload      = errors.New("invalid payload")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrInvalidEncoding     = errors.New("invalid encoding")
	ErrStorage             = errors.New("storage error")
	ErrUnsupportedMimeType = errors.New("unsupported MIME type")
	ErrSizeLimitExceeded   = errors.New("size limit exceeded")
)
