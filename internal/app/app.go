// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pulsegen-core/engine"
	"pulsegen-core/request"
	"pulsegen-core/wire"
	"pulsegen/internal/cli"
	"pulsegen/internal/schedulefile"
	"pulsegen/internal/version"
	"pulsegen/internal/writers"
)

func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()

	fs := cli.NewFlagSet("pulsegen")
	fs.SetOutput(io.Discard)

	if len(argv) == 0 {
		_, _ = cli.ParseArgs(fs, []string{"-h"})
		fs.SetOutput(outw)
		fs.Usage()
		if err := outw.Flush(); writers.IsBrokenPipe(err) {
			return 0
		} else if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 3
		}
		return 0
	}

	opts, err := cli.ParseArgs(fs, argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(outw)
			fs.Usage()
			if e := outw.Flush(); writers.IsBrokenPipe(e) {
				return 0
			} else if e != nil {
				_, _ = fmt.Fprintln(stderr, e)
				return 3
			}
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err)
		fs.SetOutput(outw)
		fs.Usage()
		if e := outw.Flush(); writers.IsBrokenPipe(e) {
			return 0
		} else if e != nil {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 2
	}

	if opts.Version {
		_, _ = fmt.Fprintf(outw, "pulsegen version %s\n", version.Version)
		if e := outw.Flush(); writers.IsBrokenPipe(e) {
			return 0
		} else if e != nil {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 0
	}

	req, err := loadRequest(opts)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	cw, err := writers.Lookup(opts.Format)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	ctx := parent
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
		defer cancel()
	}
	eng := engine.New(engine.Config{MaxConcurrency: opts.Threads})
	out, err := eng.Generate(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 3
	}
	for i := range req.Channels {
		ch := &req.Channels[i]
		path := filepath.Join(opts.OutDir, ch.Name+cw.Ext)
		if err := writeChannel(path, cw, ch.SampleRate, out[ch.Name]); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 3
		}
		_, _ = fmt.Fprintf(outw, "%s\t%d samples\n", path, ch.Length)
	}
	if e := outw.Flush(); writers.IsBrokenPipe(e) {
		return 0
	} else if e != nil {
		_, _ = fmt.Fprintln(stderr, e)
		return 3
	}
	return 0
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

func loadRequest(opts cli.Options) (*request.Request, error) {
	if opts.ScheduleFile != "" {
		return schedulefile.LoadFile(opts.ScheduleFile)
	}
	if opts.RequestFile == "-" {
		return wire.Decode(os.Stdin)
	}
	f, err := os.Open(opts.RequestFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	req, err := wire.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.RequestFile, err)
	}
	return req, nil
}

func writeChannel(path string, cw writers.ChannelWriter, sampleRate float64, wf engine.Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cw.Write(f, sampleRate, wf); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
