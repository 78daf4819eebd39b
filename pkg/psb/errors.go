package psb

import "errors"

var (
	// ErrFormat reports a truncated stream, an unknown header version or an
	// unexpected tag in a structural position (header, offset tables).
	ErrFormat = errors.New("psb: invalid format")

	// ErrIndex reports a string or resource index missing from its table, or
	// a dictionary key missing from the name table during encoding.
	ErrIndex = errors.New("psb: index out of range")

	// ErrData reports a root entry that is missing or is not a dictionary.
	ErrData = errors.New("psb: invalid data")
)
