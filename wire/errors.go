package wire

import "errors"

var (
	// ErrSignSyntax is returned when a signature string fails to parse.
	ErrSignSyntax = errors.New("wire: invalid signature syntax")

	// ErrTruncated is returned by Decode when the input is shorter than
	// the signature requires.
	ErrTruncated = errors.New("wire: input truncated")

	// ErrShape is returned when the Go value passed to Encode/Decode
	// does not match the signature's shape (wrong struct field count, a
	// Go type other than the field's natural one such as int32 for u4,
	// non-slice value against a vector field, non-struct against a
	// multi-field group).
	ErrShape = errors.New("wire: value shape does not match signature")
)
