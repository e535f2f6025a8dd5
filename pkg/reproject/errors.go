package reproject

import (
	"github.com/pkg/errors"
)

// Call-level failures. Anything wrong with a single pixel (it maps off
// the sky, or outside the source image) is not an error; it just gets a
// zero footprint.
var (
	// ErrConfig is a bad configuration value (unknown algorithm, negative block size ...)
	ErrConfig = errors.New("invalid configuration")

	// ErrShape is an image whose shape doesn't fit its data, or doesn't fit the requested output
	ErrShape = errors.New("invalid shape")

	// ErrResource is an output that would need more memory than we're allowed
	ErrResource = errors.New("resource limit exceeded")
)

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

func shapeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShape, format, args...)
}
