// Package pipeline runs encode, decode, info and compare jobs on files.
//
// A Runner owns the configured encoder and the shared zstd decoder pool, and
// logs one summary line per job.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/popbuffer/internal/config"
	"github.com/Faultbox/popbuffer/pkg/formats"
	"github.com/Faultbox/popbuffer/pkg/popbuffer"
)

// Stdio is the path meaning stdin for inputs and stdout for outputs.
const Stdio = "-"

// Suffixes of files written by EncodeFile.
const (
	SuffixPOB  = ".pob"
	SuffixJSON = ".pop.json"
)

// ErrUnknownFormat is returned when an input is neither a POPB container
// nor a JSON pop buffer.
var ErrUnknownFormat = errors.New("unknown buffer format")

// Result summarises one encode job.
type Result struct {
	Input    string
	Output   string
	Cells    int
	Encoded  int
	Dropped  int
	Vertices int
	Levels   int
	Elapsed  time.Duration
}

// Runner executes jobs with one configuration.
type Runner struct {
	cfg      *config.Config
	log      *zap.Logger
	enc      *popbuffer.Encoder
	decoders *formats.DecoderPool

	// Stdin and Stdout back the "-" path. They default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// New builds a Runner. cfg must already be validated.
func New(cfg *config.Config, log *zap.Logger) (*Runner, error) {
	assigner, err := popbuffer.Lookup(cfg.Encode.Assigner)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		log:      log.Named("pipeline"),
		enc:      popbuffer.NewEncoder(popbuffer.WithAssigner(assigner), popbuffer.WithWorkers(cfg.Encode.Workers)),
		decoders: formats.NewDecoderPool(),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
	}, nil
}

// Close releases the shared decoder.
func (r *Runner) Close() {
	r.decoders.Close()
}

// OutputPath returns where EncodeFile writes when no output is given.
func (r *Runner) OutputPath(in string) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	dir := r.cfg.Output.Dir
	if dir == "" {
		dir = filepath.Dir(in)
	}
	suffix := SuffixPOB
	if r.cfg.Output.Format == config.FormatJSON {
		suffix = SuffixJSON
	}
	return filepath.Join(dir, base+suffix)
}

// IsOutput reports whether path looks like something EncodeFile wrote.
func IsOutput(path string) bool {
	return strings.HasSuffix(path, SuffixPOB) || strings.HasSuffix(path, SuffixJSON)
}

// EncodeFile reads a JSON mesh from in and writes its pop buffer to out.
// An empty out uses OutputPath. The output format follows the extension of
// out, falling back to the configured format.
func (r *Runner) EncodeFile(ctx context.Context, in, out string) (*Result, error) {
	start := time.Now()

	mesh, err := r.readMesh(in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pb, err := r.enc.Encode(*mesh, r.cfg.Encode.MaxLevel)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", in, err)
	}

	if out == "" {
		out = r.OutputPath(in)
	}
	if err := r.writeOutput(out, func(w io.Writer) error {
		return r.writeBuffer(w, out, pb)
	}); err != nil {
		return nil, err
	}

	res := &Result{
		Input:    in,
		Output:   out,
		Cells:    len(mesh.Cells),
		Encoded:  pb.CellCount(),
		Dropped:  len(mesh.Cells) - pb.CellCount(),
		Vertices: pb.PositionCount(),
		Levels:   len(pb.Levels),
		Elapsed:  time.Since(start),
	}

	for i, level := range pb.Levels {
		if len(level.Cells) == 0 {
			continue
		}
		r.log.Debug("level",
			zap.String("file", in),
			zap.Int("level", i),
			zap.Int("cells", len(level.Cells)),
			zap.Int("vertices", len(level.Positions)))
	}
	r.log.Info("encoded",
		zap.String("file", in),
		zap.String("out", out),
		zap.String("assigner", r.enc.Assigner().Name()),
		zap.Int("cells", res.Encoded),
		zap.Int("dropped", res.Dropped),
		zap.Int("vertices", res.Vertices),
		zap.Duration("elapsed", res.Elapsed))

	return res, nil
}

// DecodeFile reads a pop buffer from in, decodes its first levels and writes
// the mesh as JSON to out. levels <= 0 decodes every level.
func (r *Runner) DecodeFile(ctx context.Context, in, out string, levels int) (popbuffer.Mesh, error) {
	start := time.Now()

	pb, err := r.ReadBuffer(ctx, in)
	if err != nil {
		return popbuffer.Mesh{}, err
	}
	if levels <= 0 {
		levels = len(pb.Levels)
	}
	mesh := popbuffer.DecodePrefix(pb, levels)

	if out == "" {
		out = Stdio
	}
	if err := r.writeOutput(out, func(w io.Writer) error {
		return formats.WriteMesh(w, &mesh)
	}); err != nil {
		return popbuffer.Mesh{}, err
	}

	r.log.Info("decoded",
		zap.String("file", in),
		zap.Int("levels", min(levels, len(pb.Levels))),
		zap.Int("cells", len(mesh.Cells)),
		zap.Int("vertices", len(mesh.Positions)),
		zap.Duration("elapsed", time.Since(start)))

	return mesh, nil
}

// Info describes a stored pop buffer.
type Info struct {
	popbuffer.Stats
	Format string
	// Header is set for POPB containers only.
	Header *formats.Header
}

// InfoFile summarises the pop buffer stored at in.
func (r *Runner) InfoFile(ctx context.Context, in string) (*Info, error) {
	pb, hdr, err := r.readBuffer(ctx, in)
	if err != nil {
		return nil, err
	}
	info := &Info{Stats: popbuffer.Summarize(pb), Format: config.FormatJSON, Header: hdr}
	if hdr != nil {
		info.Format = config.FormatPOB
	}
	return info, nil
}

// CompareFile classifies the JSON mesh at in with both named assigners at
// the configured max level.
func (r *Runner) CompareFile(ctx context.Context, in, a, b string) (popbuffer.Comparison, error) {
	first, err := popbuffer.Lookup(a)
	if err != nil {
		return popbuffer.Comparison{}, err
	}
	second, err := popbuffer.Lookup(b)
	if err != nil {
		return popbuffer.Comparison{}, err
	}

	mesh, err := r.readMesh(in)
	if err != nil {
		return popbuffer.Comparison{}, err
	}
	if err := ctx.Err(); err != nil {
		return popbuffer.Comparison{}, err
	}

	cmp := popbuffer.Compare(first, second, mesh.Cells, mesh.Positions, r.cfg.Encode.MaxLevel)
	r.log.Info("compared",
		zap.String("file", in),
		zap.String("a", cmp.A),
		zap.String("b", cmp.B),
		zap.Int("cells", cmp.Cells),
		zap.Int("mismatches", len(cmp.Mismatches)))
	return cmp, nil
}

// ReadBuffer loads a pop buffer, detecting POPB containers by their magic
// and JSON by its opening brace.
func (r *Runner) ReadBuffer(ctx context.Context, in string) (*popbuffer.PopBuffer, error) {
	pb, _, err := r.readBuffer(ctx, in)
	return pb, err
}

// readBuffer is ReadBuffer that also returns the POPB header, or nil for JSON.
func (r *Runner) readBuffer(ctx context.Context, in string) (*popbuffer.PopBuffer, *formats.Header, error) {
	rc, err := r.openInput(in)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	if err := skipSpace(br); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", in, formats.ErrTruncated)
	}
	head, _ := br.Peek(4)

	if bytes.Equal(head, []byte("POPB")) {
		pr, err := formats.NewReader(ctx, br, formats.ReaderOptions{Decoders: r.decoders})
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", in, err)
		}
		defer pr.Close()

		hdr := pr.Header()
		pb, err := pr.ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", in, err)
		}
		return pb, &hdr, nil
	}
	if head[0] != '{' {
		return nil, nil, fmt.Errorf("%s: %w", in, ErrUnknownFormat)
	}

	pb, err := formats.ReadJSON(br)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", in, err)
	}
	return pb, nil, nil
}

// skipSpace consumes leading JSON whitespace and fails on empty input.
func skipSpace(br *bufio.Reader) error {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return br.UnreadByte()
	}
}

func (r *Runner) readMesh(in string) (*popbuffer.Mesh, error) {
	rc, err := r.openInput(in)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	mesh, err := formats.ReadMesh(rc)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", in, err)
	}
	return mesh, nil
}

func (r *Runner) writeBuffer(w io.Writer, out string, pb *popbuffer.PopBuffer) error {
	format := r.cfg.Output.Format
	switch {
	case strings.HasSuffix(out, ".json"):
		format = config.FormatJSON
	case strings.HasSuffix(out, SuffixPOB):
		format = config.FormatPOB
	}

	if format == config.FormatJSON {
		return formats.WriteJSON(w, pb)
	}
	return formats.WritePOB(w, pb, formats.WriterOptions{Compress: r.cfg.Output.Compress})
}

func (r *Runner) openInput(in string) (io.ReadCloser, error) {
	if in == Stdio {
		return io.NopCloser(r.Stdin), nil
	}
	return os.Open(in)
}

// writeOutput writes to a temporary file next to out and renames it into
// place, so watchers and readers never see a partial buffer.
func (r *Runner) writeOutput(out string, write func(io.Writer) error) error {
	if out == Stdio {
		return write(r.Stdout)
	}

	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".popbuf-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), out)
}
