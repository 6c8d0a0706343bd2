package style

import "errors"

// ErrEmptyInput is wrapped by a DecodeError when no bytes were supplied.
var ErrEmptyInput = errors.New("empty input")

// DecodeError reports input bytes that are not a supported image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode image: " + e.Err.Error() }

// Unwrap returns the codec error.
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failure to serialize the rendered image.
// It is not expected for images that decoded successfully.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "encode image: " + e.Err.Error() }

// Unwrap returns the codec error.
func (e *EncodeError) Unwrap() error { return e.Err }
