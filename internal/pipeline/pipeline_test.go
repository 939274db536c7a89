package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/popbuffer/internal/config"
	"github.com/Faultbox/popbuffer/pkg/formats"
	"github.com/Faultbox/popbuffer/pkg/popbuffer"
)

// squareMesh is a unit square in z=0 plus one cell with a repeated corner.
const squareMesh = `{
  "cells": [[0,1,2],[0,2,3],[0,0,1]],
  "positions": [[0,0,0],[1,0,0],[1,1,0],[0,1,0]]
}`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Encode.MaxLevel = 8
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	r, err := New(cfg, zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)
	return r, logs
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestNew_UnknownAssigner(t *testing.T) {
	cfg := testConfig()
	cfg.Encode.Assigner = "octree"
	if _, err := New(cfg, nil); !errors.Is(err, popbuffer.ErrUnknownAssigner) {
		t.Errorf("expected ErrUnknownAssigner, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name   string
		format string
		dir    string
		in     string
		want   string
	}{
		{"pob next to input", config.FormatPOB, "", "meshes/bunny.json", "meshes/bunny.pob"},
		{"json next to input", config.FormatJSON, "", "meshes/bunny.json", "meshes/bunny.pop.json"},
		{"output dir", config.FormatPOB, "out", "meshes/bunny.json", "out/bunny.pob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Output.Format = tt.format
			cfg.Output.Dir = tt.dir
			r, _ := newTestRunner(t, cfg)
			if got := r.OutputPath(tt.in); got != filepath.FromSlash(tt.want) {
				t.Errorf("OutputPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsOutput(t *testing.T) {
	tests := map[string]bool{
		"a.pob":      true,
		"a.pop.json": true,
		"a.json":     false,
		"a.pob.tmp":  false,
	}
	for path, want := range tests {
		if got := IsOutput(path); got != want {
			t.Errorf("IsOutput(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestEncodeFile(t *testing.T) {
	for _, format := range []string{config.FormatPOB, config.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			in := writeFile(t, dir, "square.json", squareMesh)

			cfg := testConfig()
			cfg.Output.Format = format
			r, logs := newTestRunner(t, cfg)

			res, err := r.EncodeFile(context.Background(), in, "")
			if err != nil {
				t.Fatalf("EncodeFile: %v", err)
			}
			if res.Output != r.OutputPath(in) {
				t.Errorf("expected output %s, got %s", r.OutputPath(in), res.Output)
			}
			if res.Cells != 3 || res.Encoded != 2 || res.Dropped != 1 {
				t.Errorf("expected 3 cells, 2 encoded, 1 dropped, got %+v", res)
			}
			if res.Vertices != 3 && res.Vertices != 4 {
				t.Errorf("unexpected vertex count %d", res.Vertices)
			}
			if res.Levels != 8 {
				t.Errorf("expected 8 levels, got %d", res.Levels)
			}

			pb, err := r.ReadBuffer(context.Background(), res.Output)
			if err != nil {
				t.Fatalf("ReadBuffer: %v", err)
			}
			if pb.CellCount() != 2 || len(pb.Levels) != 8 {
				t.Errorf("read back %d cells in %d levels", pb.CellCount(), len(pb.Levels))
			}

			entries := logs.FilterMessage("encoded").All()
			if len(entries) != 1 {
				t.Fatalf("expected one encoded log entry, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["dropped"] != int64(1) || fields["file"] != in {
				t.Errorf("unexpected log fields %v", fields)
			}
		})
	}
}

func TestEncodeFile_ExplicitOutputExtension(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "square.json", squareMesh)
	out := filepath.Join(dir, "explicit.json")

	r, _ := newTestRunner(t, testConfig())
	if _, err := r.EncodeFile(context.Background(), in, out); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("{")) {
		t.Errorf("expected JSON output for .json path, got %q", data[:4])
	}
}

func TestEncodeFile_Stdout(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())
	r.Stdin = strings.NewReader(squareMesh)
	var out bytes.Buffer
	r.Stdout = &out

	if _, err := r.EncodeFile(context.Background(), Stdio, Stdio); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("POPB")) {
		t.Errorf("expected POPB container on stdout")
	}
}

func TestEncodeFile_Errors(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRunner(t, testConfig())

	bad := writeFile(t, dir, "bad.json", `{"cells":[[0,1,9]],"positions":[[0,0,0],[1,0,0]]}`)
	if _, err := r.EncodeFile(context.Background(), bad, ""); !errors.Is(err, formats.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}

	if _, err := r.EncodeFile(context.Background(), filepath.Join(dir, "missing.json"), ""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	good := writeFile(t, dir, "good.json", squareMesh)
	if _, err := r.EncodeFile(ctx, good, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "square.json", squareMesh)

	r, _ := newTestRunner(t, testConfig())
	res, err := r.EncodeFile(context.Background(), in, "")
	if err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}

	out := filepath.Join(dir, "decoded.json")
	mesh, err := r.DecodeFile(context.Background(), res.Output, out, 0)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if len(mesh.Cells) != 2 {
		t.Errorf("expected 2 cells, got %d", len(mesh.Cells))
	}
	if area := popbuffer.SurfaceArea(mesh); math.Abs(area-1) > 1e-9 {
		t.Errorf("expected unit area, got %f", area)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open decoded mesh: %v", err)
	}
	defer f.Close()
	written, err := formats.ReadMesh(f)
	if err != nil {
		t.Fatalf("ReadMesh: %v", err)
	}
	if len(written.Cells) != len(mesh.Cells) || len(written.Positions) != len(mesh.Positions) {
		t.Errorf("written mesh differs from returned mesh")
	}
}

func TestDecodeFile_Prefix(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "square.json", squareMesh)

	r, _ := newTestRunner(t, testConfig())
	res, err := r.EncodeFile(context.Background(), in, "")
	if err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}

	var out bytes.Buffer
	r.Stdout = &out
	mesh, err := r.DecodeFile(context.Background(), res.Output, "", 1)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	// Both square cells sit in the coarsest level.
	if len(mesh.Cells) != 2 {
		t.Errorf("expected 2 cells in the first level, got %d", len(mesh.Cells))
	}
	if out.Len() == 0 {
		t.Error("expected mesh on stdout")
	}
}

func TestReadBuffer_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRunner(t, testConfig())

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"garbage.bin", "GARBAGE", ErrUnknownFormat},
		{"empty.pob", "", formats.ErrTruncated},
		{"short.pob", "POPB", formats.ErrTruncated},
		{"blank.json", " \n\t ", formats.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.content)
			if _, err := r.ReadBuffer(context.Background(), path); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestInfoFile(t *testing.T) {
	tests := []struct {
		format     string
		wantHeader bool
	}{
		{config.FormatPOB, true},
		{config.FormatJSON, false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := t.TempDir()
			in := writeFile(t, dir, "square.json", squareMesh)

			cfg := testConfig()
			cfg.Output.Format = tt.format
			r, _ := newTestRunner(t, cfg)
			res, err := r.EncodeFile(context.Background(), in, "")
			if err != nil {
				t.Fatalf("EncodeFile: %v", err)
			}

			info, err := r.InfoFile(context.Background(), res.Output)
			if err != nil {
				t.Fatalf("InfoFile: %v", err)
			}
			if info.Cells != 2 || len(info.Levels) != 8 || info.EmptyLevels != 7 {
				t.Errorf("unexpected stats %+v", info.Stats)
			}
			if info.Format != tt.format {
				t.Errorf("Format = %q, want %q", info.Format, tt.format)
			}
			if len(info.DegenerateAxes) != 1 || info.DegenerateAxes[0] != 2 {
				t.Errorf("DegenerateAxes = %v, want [2] for a flat square", info.DegenerateAxes)
			}

			if !tt.wantHeader {
				if info.Header != nil {
					t.Errorf("JSON buffer reported a header: %+v", info.Header)
				}
				return
			}
			if info.Header == nil {
				t.Fatal("expected a POPB header")
			}
			if info.Header.StreamID == uuid.Nil {
				t.Error("expected a generated stream ID")
			}
			if info.Header.Levels != 8 || !info.Header.Compressed() {
				t.Errorf("unexpected header %+v", info.Header)
			}
		})
	}
}

func TestCompareFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "square.json", squareMesh)

	r, logs := newTestRunner(t, testConfig())
	cmp, err := r.CompareFile(context.Background(), in, "prefix", "rescan")
	if err != nil {
		t.Fatalf("CompareFile: %v", err)
	}
	if cmp.A != "prefix" || cmp.B != "rescan" || cmp.Cells != 3 {
		t.Errorf("unexpected comparison %+v", cmp)
	}
	if cmp.DroppedA != 1 || cmp.DroppedB != 1 {
		t.Errorf("expected both assigners to drop the repeated-corner cell, got %+v", cmp)
	}
	if logs.FilterMessage("compared").Len() != 1 {
		t.Error("expected a compared log entry")
	}

	if _, err := r.CompareFile(context.Background(), in, "prefix", "octree"); !errors.Is(err, popbuffer.ErrUnknownAssigner) {
		t.Errorf("expected ErrUnknownAssigner, got %v", err)
	}
}

func TestReadBuffer_JSONLeadingWhitespace(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "square.json", squareMesh)

	cfg := testConfig()
	cfg.Output.Format = config.FormatJSON
	r, _ := newTestRunner(t, cfg)
	res, err := r.EncodeFile(context.Background(), in, "")
	if err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	encoded, err := os.ReadFile(res.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	tests := []struct {
		name    string
		content string
		cells   int
	}{
		{"empty buffer", "\n    {\"bounds\":null,\"levels\":[]}", 0},
		{"encoded buffer", "\r\n\t\t  \n" + string(encoded), 2},
		{"no whitespace", string(encoded), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "buffer.pop.json", tt.content)
			pb, err := r.ReadBuffer(context.Background(), path)
			if err != nil {
				t.Fatalf("ReadBuffer: %v", err)
			}
			if pb.CellCount() != tt.cells {
				t.Errorf("expected %d cells, got %d", tt.cells, pb.CellCount())
			}
		})
	}
}
