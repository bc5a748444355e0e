package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/use-agent/topdf/auth"
	"github.com/use-agent/topdf/browser"
	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/pipeline"
	"github.com/use-agent/topdf/target"
)

// runConvert converts one link to a PDF and prints where it landed.
func runConvert(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	// ── 1. Flags and configuration ──────────────────────────────────
	flags, rest, err := parseConvertFlags(args, stderr)
	if err != nil {
		return err
	}
	if flags.version {
		fmt.Fprintln(stdout, "topdf", Version)
		return nil
	}
	if len(rest) != 1 {
		return fmt.Errorf("%w: expected exactly one link, got %d", errUsage, len(rest))
	}
	// Fail on a bad link before a browser is started.
	t, err := target.Parse(rest[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(flags.common.config)
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if flags.common.quiet {
		cfg.Log.Level = "error"
	}
	initLogger(cfg.Log, stderr)

	passcode := flags.passcode
	if passcode == "" {
		passcode = os.Getenv("TOPDF_PASSCODE")
	}

	// ── 2. Browser ──────────────────────────────────────────────────
	b, err := browser.Launch(cfg.Browser, browser.TimingFrom(cfg.Capture))
	if err != nil {
		return err
	}
	defer b.Close()

	conv := pipeline.FromConfig(cfg, sessionFactory(b), nil)

	// ── 3. Convert ──────────────────────────────────────────────────
	req := pipeline.Request{
		URL:        t.URL,
		Email:      flags.email,
		Passcode:   passcode,
		OutputName: flags.name,
	}
	if !flags.noPrompt {
		req.Credentials = newPrompter(stdin, stderr, auth.Credentials{Email: flags.email, Passcode: passcode}).Credentials
	}
	var bar *pageBar
	if !flags.common.quiet && stderrIsTerminal() {
		bar = newPageBar(stderr)
		req.Progress = bar.Update
	}

	res, err := conv.Convert(ctx, req)
	if bar != nil {
		bar.Close()
	}
	if err != nil {
		printFailure(stderr, err)
		return err
	}

	// ── 4. Report ───────────────────────────────────────────────────
	if flags.common.quiet {
		fmt.Fprintln(stdout, res.Path)
		return nil
	}
	fmt.Fprintf(stdout, "Saved %d pages to %s\n", res.PageCount, res.Path)
	return nil
}

// sessionFactory adapts the browser to the pipeline's session interface.
func sessionFactory(b *browser.Browser) pipeline.SessionFactory {
	return func(ctx context.Context) (pipeline.Session, error) {
		s, err := b.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// printFailure prints the hint for typed errors; the error itself is
// printed by main.
func printFailure(w io.Writer, err error) {
	ce, ok := models.AsConvertError(err)
	if !ok {
		return
	}
	slog.Debug("conversion error detail", "kind", ce.Kind, "stage", ce.Stage, "page", ce.Page)
	if hint := ce.Hint(); hint != "" {
		fmt.Fprintln(w, "hint:", hint)
	}
}
