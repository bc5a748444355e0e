package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/use-agent/topdf/config"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "", "YAML config file (default $TOPDF_CONFIG)")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "print only the output path")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

// convertFlags holds flags for the default convert command.
type convertFlags struct {
	common    commonFlags
	email     string
	passcode  string
	name      string
	outputDir string
	noPrompt  bool
	noProbe   bool
	headful   bool
	version   bool
}

func newConvertFlagSet(f *convertFlags, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("topdf", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f.common.register(fs)
	fs.StringVarP(&f.email, "email", "e", "", "email to submit if the document asks for one")
	fs.StringVarP(&f.passcode, "passcode", "p", "", "passcode to submit if the document is protected (or $TOPDF_PASSCODE)")
	fs.StringVarP(&f.name, "name", "n", "", "output file name without extension (default: document title)")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "destination directory (default ~/Downloads)")
	fs.BoolVar(&f.noPrompt, "no-prompt", false, "fail instead of asking for missing credentials")
	fs.BoolVar(&f.noProbe, "no-probe", false, "skip the preflight link check")
	fs.BoolVar(&f.headful, "headful", false, "show the browser window")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  topdf [flags] <docsend-url>\n  topdf serve [flags]\n  topdf history [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// parseConvertFlags parses args (without the program name) and returns the
// flags and the remaining positional arguments.
func parseConvertFlags(args []string, stderr io.Writer) (*convertFlags, []string, error) {
	f := &convertFlags{}
	fs := newConvertFlagSet(f, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return f, fs.Args(), nil
}

// apply overlays explicitly set flags on the loaded configuration.
func (f *convertFlags) apply(cfg *config.Config) {
	if f.outputDir != "" {
		cfg.Output.Dir = f.outputDir
	}
	if f.noProbe {
		cfg.Probe.Enabled = false
	}
	if f.headful {
		cfg.Browser.Headless = false
	}
	if f.common.verbose {
		cfg.Log.Level = "debug"
	}
}

// serveFlags holds flags for `topdf serve`.
type serveFlags struct {
	common commonFlags
	host   string
	port   int
}

func parseServeFlags(args []string, stderr io.Writer) (*serveFlags, error) {
	f := &serveFlags{}
	fs := flag.NewFlagSet("topdf serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f.common.register(fs)
	fs.StringVar(&f.host, "host", "", "listen host (default 127.0.0.1)")
	fs.IntVar(&f.port, "port", 0, "listen port (default 8790)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: serve takes no arguments", errUsage)
	}
	return f, nil
}

func (f *serveFlags) apply(cfg *config.Config) {
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.common.verbose {
		cfg.Log.Level = "debug"
	}
}

// historyFlags holds flags for `topdf history`.
type historyFlags struct {
	common commonFlags
	limit  int
	clear  bool
	remove string
	json   bool
}

func parseHistoryFlags(args []string, stderr io.Writer) (*historyFlags, error) {
	f := &historyFlags{}
	fs := flag.NewFlagSet("topdf history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f.common.register(fs)
	fs.IntVarP(&f.limit, "limit", "l", 0, "show at most this many entries")
	fs.BoolVar(&f.clear, "clear", false, "forget every entry")
	fs.StringVar(&f.remove, "remove", "", "forget the entry for this PDF path")
	fs.BoolVar(&f.json, "json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if f.clear && f.remove != "" {
		return nil, fmt.Errorf("%w: --clear and --remove are mutually exclusive", errUsage)
	}
	return f, nil
}
