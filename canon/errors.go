package canon

import "errors"

// ErrInvalidValue is returned for non-finite numerics and other values that
// cannot be represented in the canonical tree.
var ErrInvalidValue = errors.New("invalid value")

// ErrInvalidKey is returned when a map key cannot be coerced to a string.
var ErrInvalidKey = errors.New("invalid key")
