package config

import (
	"flag"
	"strconv"
)

// Flags holds command-line overrides. Zero values leave the config alone.
type Flags struct {
	Config   string
	Debug    bool
	MaxLevel int
	Assigner string
	Format   string
	Compress *bool // nil when -compress was not given
	Workers  int
	Out      string
}

// RegisterFlags adds the shared popbuf flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.IntVar(&f.MaxLevel, "max-level", 0, "Maximum level / quantization bits")
	fs.StringVar(&f.Assigner, "assigner", "", "Level assigner: prefix or rescan")
	fs.StringVar(&f.Format, "format", "", "Output format: json or pob")
	fs.BoolFunc("compress", "Compress pob level payloads (-compress=false to disable)", func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		f.Compress = &v
		return nil
	})
	fs.IntVar(&f.Workers, "workers", 0, "Level builder workers (-1 for GOMAXPROCS)")
	fs.StringVar(&f.Out, "out", "", "Output path (- for stdout)")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.MaxLevel != 0 {
		cfg.Encode.MaxLevel = f.MaxLevel
	}
	if f.Assigner != "" {
		cfg.Encode.Assigner = f.Assigner
	}
	if f.Format != "" {
		cfg.Output.Format = f.Format
	}
	if f.Compress != nil {
		cfg.Output.Compress = *f.Compress
	}
	if f.Workers != 0 {
		cfg.Encode.Workers = f.Workers
	}
}
