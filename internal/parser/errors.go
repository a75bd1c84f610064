package parser

import "errors"

var (
	// ErrInvalidFormat is returned when a line does not follow the expected format.
	ErrInvalidFormat = errors.New("invalid input format")

	// ErrUnsupportedFormat is returned when no parser handles a format.
	ErrUnsupportedFormat = errors.New("unsupported format")
)
