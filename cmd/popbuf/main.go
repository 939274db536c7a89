// popbuf is a CLI utility for encoding triangle meshes into progressive
// pop buffers and inspecting them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Faultbox/popbuffer/internal/config"
	"github.com/Faultbox/popbuffer/internal/logger"
	"github.com/Faultbox/popbuffer/internal/pipeline"
	"github.com/Faultbox/popbuffer/internal/watch"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "encode", "enc":
		cmdEncode(args)
	case "decode", "dec":
		cmdDecode(args)
	case "info":
		cmdInfo(args)
	case "compare", "cmp":
		cmdCompare(args)
	case "watch":
		cmdWatch(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`popbuf - progressive mesh (pop buffer) encoder

Usage:
  popbuf <command> [options]

Commands:
  encode <mesh.json>...        Encode meshes into pop buffers
  decode <buffer> [-levels N]  Decode a buffer (or its first N levels) to a JSON mesh
  info <buffer>                Show per-level statistics
  compare <mesh.json>          Compare level assignment strategies
  watch [dir]                  Re-encode meshes whenever they change
  config                       Write the effective configuration

Common options:
  -config <file>   Config file (.yaml or .toml)
  -max-level N     Levels and quantization bits (1-30)
  -assigner NAME   prefix (default) or rescan
  -format FORMAT   pob (default) or json
  -compress=BOOL   zstd-compress pob level payloads
  -workers N       Parallel level builder workers (-1 = all CPUs)
  -out PATH        Output path (- for stdout)
  -debug           Debug logging

Examples:
  popbuf encode -max-level 12 bunny.json
  popbuf decode -levels 6 -out coarse.json bunny.pob
  popbuf info bunny.pob
  popbuf compare -a prefix -b rescan bunny.json
  popbuf watch -format json ./meshes`)
}

// setup loads config, initializes logging and builds a runner.
func setup(f *config.Flags) (*config.Config, *pipeline.Runner) {
	cfg, err := config.Load(f)
	check(err)

	check(logger.InitWithFileConfig(cfg.Logging.Level, cfg.Logging.File(), true))

	runner, err := pipeline.New(cfg, logger.Log)
	check(err)
	return cfg, runner
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdEncode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	f := config.RegisterFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: popbuf encode [options] <mesh.json>...")
		os.Exit(1)
	}
	if f.Out != "" && fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Error: -out needs exactly one input")
		os.Exit(1)
	}

	_, runner := setup(f)
	defer runner.Close()
	defer logger.Sync()

	ctx := context.Background()
	failed := 0
	for _, in := range fs.Args() {
		res, err := runner.EncodeFile(ctx, in, f.Out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed++
			continue
		}
		if res.Output != pipeline.Stdio {
			fmt.Fprintf(os.Stderr, "%s -> %s (%d cells, %d dropped, %d vertices)\n",
				res.Input, res.Output, res.Encoded, res.Dropped, res.Vertices)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func cmdDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	f := config.RegisterFlags(fs)
	levels := fs.Int("levels", 0, "Decode only the first N levels (0 = all)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: popbuf decode [-levels N] [-out mesh.json] <buffer>")
		os.Exit(1)
	}

	_, runner := setup(f)
	defer runner.Close()
	defer logger.Sync()

	_, err := runner.DecodeFile(context.Background(), fs.Arg(0), f.Out, *levels)
	check(err)
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	f := config.RegisterFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: popbuf info <buffer>")
		os.Exit(1)
	}

	_, runner := setup(f)
	defer runner.Close()

	st, err := runner.InfoFile(context.Background(), fs.Arg(0))
	check(err)

	fmt.Printf("Buffer:   %s (%s)\n", fs.Arg(0), st.Format)
	if st.Header != nil {
		compression := "none"
		if st.Header.Compressed() {
			compression = "zstd"
		}
		fmt.Printf("Stream:   %s (v%s, compression %s)\n", st.Header.StreamID, st.Header.Version, compression)
	}
	if st.Bounds != nil {
		fmt.Printf("Bounds:   %v - %v\n", st.Bounds.Min, st.Bounds.Max)
		if len(st.DegenerateAxes) > 0 {
			fmt.Printf("Flat:     %s (zero span)\n", axisNames(st.DegenerateAxes))
		}
	} else {
		fmt.Println("Bounds:   (empty)")
	}
	fmt.Printf("Levels:   %d (%d empty)\n", len(st.Levels), st.EmptyLevels)
	fmt.Printf("Cells:    %d\n", st.Cells)
	fmt.Printf("Vertices: %d\n", st.Vertices)
	fmt.Println()
	fmt.Printf("  %-6s %10s %10s %10s %14s\n", "level", "cells", "new verts", "vertices", "area")
	for _, l := range st.Levels {
		if l.Cells == 0 && l.NewVertices == 0 {
			continue
		}
		fmt.Printf("  %-6d %10d %10d %10d %14.6g\n", l.Level, l.Cells, l.NewVertices, l.Vertices, l.Area)
	}
}

func axisNames(axes []int) string {
	names := make([]string, len(axes))
	for i, a := range axes {
		names[i] = string("xyz"[a])
	}
	return strings.Join(names, ",")
}

func cmdCompare(args []string) {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	f := config.RegisterFlags(fs)
	a := fs.String("a", "prefix", "First assigner")
	b := fs.String("b", "rescan", "Second assigner")
	limit := fs.Int("n", 20, "Show at most N mismatches (0 = all)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: popbuf compare [-a prefix] [-b rescan] <mesh.json>")
		os.Exit(1)
	}

	_, runner := setup(f)
	defer runner.Close()

	cmp, err := runner.CompareFile(context.Background(), fs.Arg(0), *a, *b)
	check(err)

	fmt.Printf("Mesh:       %s\n", fs.Arg(0))
	fmt.Printf("Cells:      %d\n", cmp.Cells)
	fmt.Printf("Dropped:    %s=%d %s=%d\n", cmp.A, cmp.DroppedA, cmp.B, cmp.DroppedB)
	fmt.Printf("Mismatches: %d\n", len(cmp.Mismatches))
	for i, m := range cmp.Mismatches {
		if *limit > 0 && i >= *limit {
			fmt.Printf("  ... and %d more\n", len(cmp.Mismatches)-i)
			break
		}
		fmt.Printf("  cell %-8d %s=%-4s %s=%s\n", m.Cell, cmp.A, bucket(m.A), cmp.B, bucket(m.B))
	}
}

func bucket(level int) string {
	if level < 0 {
		return "drop"
	}
	return fmt.Sprint(level)
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	f := config.RegisterFlags(fs)
	fs.Parse(args)

	cfg, runner := setup(f)
	defer runner.Close()
	defer logger.Sync()

	dir := cfg.Watch.Dir
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	w, err := watch.New(dir, func(ctx context.Context, path string) error {
		_, err := runner.EncodeFile(ctx, path, "")
		return err
	}, watch.Options{
		Pattern:  cfg.Watch.Pattern,
		Debounce: time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		Ignore:   pipeline.IsOutput,
		Logger:   logger.Log,
	})
	check(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	check(w.Run(ctx))
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	f := config.RegisterFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(f)
	check(err)

	if f.Out == "" {
		check(cfg.Save())
		fmt.Printf("Wrote %s\n", config.DefaultPath())
		return
	}
	check(cfg.SaveTo(f.Out))
	fmt.Printf("Wrote %s\n", f.Out)
}
