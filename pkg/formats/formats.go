// Package formats reads and writes pop buffers and their source meshes.
//
// Two pop buffer encodings are supported: the JSON wire form
// ({"bounds": [min, max], "levels": [...]}) and POPB, a little-endian binary
// container that stores one chunk per level so a consumer can decode levels
// as they arrive.
package formats

import "errors"

// Format errors.
var (
	ErrInvalidMagic       = errors.New("invalid POPB magic: expected 'POPB'")
	ErrUnsupportedVersion = errors.New("unsupported POPB version")
	ErrTruncated          = errors.New("truncated POPB data")
	ErrLevelCount         = errors.New("invalid level count")
	ErrChunkSize          = errors.New("level chunk size mismatch")
	ErrBounds             = errors.New("non-finite POPB bounds")
	ErrHeaderNotWritten   = errors.New("POPB header not written")

	ErrCellArity       = errors.New("cell must have exactly 3 indices")
	ErrPositionArity   = errors.New("position must have exactly 3 coordinates")
	ErrIndexOutOfRange = errors.New("cell index out of range")

	ErrPoolClosed = errors.New("decoder pool closed")
)
