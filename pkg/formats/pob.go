package formats

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
	"github.com/Faultbox/popbuffer/pkg/popbuffer"
	"github.com/Faultbox/popbuffer/pkg/quantize"
)

const (
	pobMagic = "POPB"

	cellSize     = 3 * 4 // uint32 x3
	positionSize = 3 * 8 // float64 x3

	// maxChunkSize bounds a single level payload.
	maxChunkSize = 1 << 30
)

// CurrentVersion is the version written by Writer.
var CurrentVersion = Version{Major: 1, Minor: 0}

// Version is the POPB container version.
type Version struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v Version) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// Flags describe how the container was written.
type Flags uint8

const (
	FlagCompressed Flags = 1 << iota // level payloads are zstd frames
	FlagBounds                       // header bounds are present
)

// Header is the decoded POPB header.
type Header struct {
	Version  Version
	Flags    Flags
	StreamID uuid.UUID
	Levels   int
	Bounds   *pmath.Bounds
}

// Compressed reports whether level payloads are zstd-compressed.
func (h Header) Compressed() bool {
	return h.Flags&FlagCompressed != 0
}

// rawHeader is the on-disk header layout (76 bytes).
type rawHeader struct {
	Magic    [4]byte
	Major    uint8
	Minor    uint8
	Flags    uint8
	_        uint8
	StreamID [16]byte
	Levels   uint32
	Bounds   [6]float64
}

// rawChunk prefixes every level payload.
type rawChunk struct {
	Cells       uint32
	Positions   uint32
	PayloadSize uint32
}

// WriterOptions configure a Writer.
type WriterOptions struct {
	Compress bool
	// StreamID identifies the buffer to streaming consumers. A random ID is
	// generated when zero.
	StreamID uuid.UUID
}

// Writer emits a POPB container one level at a time.
type Writer struct {
	w       io.Writer
	opts    WriterOptions
	enc     *zstd.Encoder
	header  *Header
	written int
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	if opts.StreamID == uuid.Nil {
		opts.StreamID = uuid.New()
	}
	return &Writer{w: w, opts: opts}
}

// WriteHeader writes the container header for a buffer of the given bounds
// and level count.
func (w *Writer) WriteHeader(bounds *pmath.Bounds, levels int) error {
	if levels < 0 || levels > quantize.MaxBits {
		return fmt.Errorf("%w: %d", ErrLevelCount, levels)
	}

	raw := rawHeader{
		Major:    CurrentVersion.Major,
		Minor:    CurrentVersion.Minor,
		StreamID: w.opts.StreamID,
		Levels:   uint32(levels),
	}
	copy(raw.Magic[:], pobMagic)

	var flags Flags
	if w.opts.Compress {
		flags |= FlagCompressed
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		w.enc = enc
	}
	if bounds != nil {
		flags |= FlagBounds
		copy(raw.Bounds[:3], bounds.Min[:])
		copy(raw.Bounds[3:], bounds.Max[:])
	}
	raw.Flags = uint8(flags)

	if err := binary.Write(w.w, binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	w.header = &Header{
		Version:  CurrentVersion,
		Flags:    flags,
		StreamID: w.opts.StreamID,
		Levels:   levels,
		Bounds:   bounds,
	}
	return nil
}

// WriteLevel appends the next level chunk.
func (w *Writer) WriteLevel(level popbuffer.Level) error {
	if w.header == nil {
		return ErrHeaderNotWritten
	}
	if w.written == w.header.Levels {
		return fmt.Errorf("%w: header announced %d levels", ErrLevelCount, w.header.Levels)
	}

	payload := make([]byte, 0, len(level.Cells)*cellSize+len(level.Positions)*positionSize)
	for _, c := range level.Cells {
		for _, idx := range c {
			payload = binary.LittleEndian.AppendUint32(payload, uint32(idx))
		}
	}
	for _, p := range level.Positions {
		for _, v := range p {
			payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(v))
		}
	}
	if w.enc != nil {
		payload = w.enc.EncodeAll(payload, nil)
	}

	chunk := rawChunk{
		Cells:       uint32(len(level.Cells)),
		Positions:   uint32(len(level.Positions)),
		PayloadSize: uint32(len(payload)),
	}
	if err := binary.Write(w.w, binary.LittleEndian, &chunk); err != nil {
		return fmt.Errorf("writing level %d: %w", w.written, err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("writing level %d: %w", w.written, err)
	}

	w.written++
	return nil
}

// Close releases the encoder and checks every announced level was written.
func (w *Writer) Close() error {
	if w.enc != nil {
		_ = w.enc.Close()
		w.enc = nil
	}
	if w.header != nil && w.written != w.header.Levels {
		return fmt.Errorf("%w: wrote %d of %d levels", ErrLevelCount, w.written, w.header.Levels)
	}
	return nil
}

// WritePOB writes a complete buffer.
func WritePOB(w io.Writer, pb *popbuffer.PopBuffer, opts WriterOptions) error {
	pw := NewWriter(w, opts)
	if err := pw.WriteHeader(pb.Bounds, len(pb.Levels)); err != nil {
		return err
	}
	for _, level := range pb.Levels {
		if err := pw.WriteLevel(level); err != nil {
			_ = pw.Close()
			return err
		}
	}
	return pw.Close()
}

// ReaderOptions configure a Reader.
type ReaderOptions struct {
	// Decoders supplies the shared zstd decoder for compressed containers.
	// When nil the Reader creates a private pool and closes it on Close.
	Decoders *DecoderPool
}

// Reader decodes a POPB container level by level.
type Reader struct {
	r       io.Reader
	header  Header
	next    int
	handle  *DecoderHandle
	private *DecoderPool
}

// NewReader reads the header from r. ctx bounds the wait for the shared
// zstd decoder when the container is compressed.
func NewReader(ctx context.Context, r io.Reader, opts ReaderOptions) (*Reader, error) {
	var raw rawHeader
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, truncated("reading header", err)
	}
	if string(raw.Magic[:]) != pobMagic {
		return nil, ErrInvalidMagic
	}

	version := Version{Major: raw.Major, Minor: raw.Minor}
	if version.Major != CurrentVersion.Major {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	if raw.Levels > quantize.MaxBits {
		return nil, fmt.Errorf("%w: %d", ErrLevelCount, raw.Levels)
	}

	pr := &Reader{
		r: r,
		header: Header{
			Version:  version,
			Flags:    Flags(raw.Flags),
			StreamID: uuid.UUID(raw.StreamID),
			Levels:   int(raw.Levels),
		},
	}
	if pr.header.Flags&FlagBounds != 0 {
		b := &pmath.Bounds{
			Min: pmath.Vec3{raw.Bounds[0], raw.Bounds[1], raw.Bounds[2]},
			Max: pmath.Vec3{raw.Bounds[3], raw.Bounds[4], raw.Bounds[5]},
		}
		if !b.Min.IsFinite() || !b.Max.IsFinite() {
			return nil, fmt.Errorf("%w: %v - %v", ErrBounds, b.Min, b.Max)
		}
		pr.header.Bounds = b
	}

	if pr.header.Compressed() {
		pool := opts.Decoders
		if pool == nil {
			pr.private = NewDecoderPool()
			pool = pr.private
		}
		handle, err := pool.Acquire(ctx)
		if err != nil {
			pr.Close()
			return nil, err
		}
		pr.handle = handle
	}

	return pr, nil
}

// Header returns the container header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next level, or io.EOF after the last one.
func (r *Reader) Next() (popbuffer.Level, error) {
	if r.next == r.header.Levels {
		return popbuffer.Level{}, io.EOF
	}

	var chunk rawChunk
	if err := binary.Read(r.r, binary.LittleEndian, &chunk); err != nil {
		return popbuffer.Level{}, truncated(fmt.Sprintf("reading level %d", r.next), err)
	}
	if chunk.PayloadSize > maxChunkSize {
		return popbuffer.Level{}, fmt.Errorf("%w: level %d payload %d bytes", ErrChunkSize, r.next, chunk.PayloadSize)
	}

	want := uint64(chunk.Cells)*cellSize + uint64(chunk.Positions)*positionSize
	if want > maxChunkSize {
		return popbuffer.Level{}, fmt.Errorf("%w: level %d declares %d bytes", ErrChunkSize, r.next, want)
	}
	if r.handle == nil && uint64(chunk.PayloadSize) != want {
		return popbuffer.Level{}, fmt.Errorf("%w: level %d has %d bytes, want %d", ErrChunkSize, r.next, chunk.PayloadSize, want)
	}

	payload := make([]byte, chunk.PayloadSize)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return popbuffer.Level{}, truncated(fmt.Sprintf("reading level %d payload", r.next), err)
	}

	if r.handle != nil {
		decoded, err := r.handle.DecodeAll(payload, want)
		if err != nil {
			return popbuffer.Level{}, fmt.Errorf("decompressing level %d: %w", r.next, err)
		}
		payload = decoded
	}

	if uint64(len(payload)) != want {
		return popbuffer.Level{}, fmt.Errorf("%w: level %d has %d bytes, want %d", ErrChunkSize, r.next, len(payload), want)
	}

	level := popbuffer.Level{
		Cells:     make([]popbuffer.Cell, chunk.Cells),
		Positions: make([]pmath.Vec3, chunk.Positions),
	}
	buf := bytes.NewReader(payload)
	for i := range level.Cells {
		var c [3]uint32
		_ = binary.Read(buf, binary.LittleEndian, &c)
		level.Cells[i] = popbuffer.Cell{int(c[0]), int(c[1]), int(c[2])}
	}
	for i := range level.Positions {
		_ = binary.Read(buf, binary.LittleEndian, &level.Positions[i])
	}

	r.next++
	return level, nil
}

// Close releases the decoder handle.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Release()
		r.handle = nil
	}
	if r.private != nil {
		r.private.Close()
		r.private = nil
	}
	return nil
}

// ReadPOB reads a whole container and validates the result.
func ReadPOB(ctx context.Context, r io.Reader, opts ReaderOptions) (*popbuffer.PopBuffer, error) {
	pr, err := NewReader(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	defer pr.Close()
	return pr.ReadAll()
}

// ReadAll reads every level and validates them as a stream. It must be called
// before any call to Next.
func (r *Reader) ReadAll() (*popbuffer.PopBuffer, error) {
	stream := popbuffer.NewStream(r.header.Bounds, r.header.Levels)
	pb := &popbuffer.PopBuffer{Bounds: r.header.Bounds, Levels: make([]popbuffer.Level, 0, r.header.Levels)}
	for {
		level, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := stream.Push(level); err != nil {
			return nil, err
		}
		pb.Levels = append(pb.Levels, level)
	}
	return pb, nil
}

func truncated(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrTruncated, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
