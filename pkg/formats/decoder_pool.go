package formats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DecoderPool shares one zstd decoder between readers. The decoder is built
// in the background on first Acquire and reused afterwards; it is closed once
// the pool is closed and every handle has been released.
type DecoderPool struct {
	once  sync.Once
	ready chan struct{}
	dec   *zstd.Decoder
	err   error

	mu      sync.Mutex
	started bool
	refs    int
	closed  bool
}

// NewDecoderPool returns an idle pool. Nothing is allocated until the first
// Acquire.
func NewDecoderPool() *DecoderPool {
	return &DecoderPool{ready: make(chan struct{})}
}

// Acquire waits for the decoder to be ready and returns a handle to it. The
// handle must be released.
func (p *DecoderPool) Acquire(ctx context.Context) (*DecoderHandle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.refs++
	p.started = true
	p.mu.Unlock()

	p.once.Do(func() {
		go func() {
			p.dec, p.err = zstd.NewReader(nil,
				zstd.WithDecoderMaxMemory(maxChunkSize),
				zstd.WithDecodeAllCapLimit(true))
			close(p.ready)
		}()
	})

	select {
	case <-p.ready:
	case <-ctx.Done():
		p.release()
		return nil, ctx.Err()
	}
	if p.err != nil {
		p.release()
		return nil, fmt.Errorf("creating zstd decoder: %w", p.err)
	}

	return &DecoderHandle{pool: p}, nil
}

// Refs returns the number of outstanding handles.
func (p *DecoderPool) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Close stops new acquisitions. The decoder is released as soon as the last
// handle is.
func (p *DecoderPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.refs == 0 {
		p.shutdown()
	}
}

func (p *DecoderPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs--
	if p.refs == 0 && p.closed {
		p.shutdown()
	}
}

// shutdown runs with p.mu held.
func (p *DecoderPool) shutdown() {
	if !p.started {
		return
	}
	<-p.ready
	if p.dec != nil {
		p.dec.Close()
		p.dec = nil
	}
}

// DecoderHandle is a counted reference to a pool's decoder.
type DecoderHandle struct {
	pool *DecoderPool
	once sync.Once
}

// minRecordedSize is the smallest content size zstd.Encoder.EncodeAll always
// stores in the frame header.
const minRecordedSize = 256

// DecodeAll decompresses src, which must expand to exactly size bytes.
// A recorded frame content size is checked first, and decoding stops once
// output would exceed size, so an oversized frame is rejected without being
// inflated.
func (h *DecoderHandle) DecodeAll(src []byte, size uint64) ([]byte, error) {
	if size > maxChunkSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrChunkSize, size)
	}
	if len(src) == 0 {
		if size != 0 {
			return nil, fmt.Errorf("%w: empty frame, want %d bytes", ErrChunkSize, size)
		}
		return nil, nil
	}

	var hdr zstd.Header
	if err := hdr.Decode(src); err != nil {
		return nil, err
	}
	switch {
	case hdr.HasFCS && hdr.FrameContentSize != size:
		return nil, fmt.Errorf("%w: frame holds %d bytes, want %d", ErrChunkSize, hdr.FrameContentSize, size)
	case !hdr.HasFCS && size >= minRecordedSize:
		return nil, fmt.Errorf("%w: frame does not record its size, want %d bytes", ErrChunkSize, size)
	}

	out, err := h.pool.dec.DecodeAll(src, make([]byte, 0, size))
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || uint64(len(out)) > size {
		return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrChunkSize, size)
	}
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("%w: frame holds %d bytes, want %d", ErrChunkSize, len(out), size)
	}
	return out, nil
}

// Release returns the handle. Further calls are no-ops.
func (h *DecoderHandle) Release() {
	h.once.Do(h.pool.release)
}
