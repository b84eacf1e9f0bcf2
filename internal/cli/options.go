// internal/cli/options.go
package cli

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"pulsegen/internal/version"
)

// Output formats
const (
	FormatWav  = "wav"
	FormatJSON = "json"
)

// Options holds all CLI flags and arguments.
type Options struct {
	// Input: exactly one of the two
	RequestFile  string // msgpack request
	ScheduleFile string // yaml schedule document

	// Output
	OutDir string
	Format string

	// Performance
	Threads int
	Timeout time.Duration

	Version bool
}

// NewFlagSet returns a configured FlagSet with custom usage/help.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`%s: schedule-driven waveform synthesis

License: MIT
Version: %s

Usage of %s:
`, name, version.Version, name)
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs registers and parses all flags, returns an Options struct.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var opt Options
	var help bool

	fs.StringVar(&opt.RequestFile, "request", "", "msgpack request file ('-' = stdin) [*]")
	fs.StringVar(&opt.ScheduleFile, "schedule", "", "YAML schedule document [*]")

	fs.StringVar(&opt.OutDir, "output", ".", "output directory [.]")
	fs.StringVar(&opt.Format, "format", FormatWav, "output format: wav | json [wav]")

	fs.IntVar(&opt.Threads, "threads", 0, "channels rendered in parallel (0 = all CPUs) [0]")
	fs.DurationVar(&opt.Timeout, "timeout", 0, "abort generation after this duration (0 = no limit) [0]")

	fs.BoolVar(&opt.Version, "v", false, "print version and exit (shorthand) [false]")
	fs.BoolVar(&opt.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&help, "h", false, "show this help message (shorthand) [false]")

	if err := fs.Parse(argv); err != nil {
		return opt, err
	}
	if help {
		fs.Usage()
		return opt, flag.ErrHelp
	}
	if opt.Version {
		return opt, nil
	}

	// Validation
	switch {
	case opt.RequestFile != "" && opt.ScheduleFile != "":
		return opt, errors.New("--request conflicts with --schedule")
	case opt.RequestFile == "" && opt.ScheduleFile == "":
		return opt, errors.New("provide --request or --schedule")
	}
	if opt.Format != FormatWav && opt.Format != FormatJSON {
		return opt, fmt.Errorf("unknown output format %q", opt.Format)
	}
	if opt.Threads < 0 {
		return opt, errors.New("--threads must be >= 0")
	}
	if opt.Timeout < 0 {
		return opt, errors.New("--timeout must be >= 0")
	}
	return opt, nil
}
