package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/use-agent/topdf/config"
)

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// pageBar draws capture progress. The page count is unknown until the
// first page is captured, so the bar is created lazily.
type pageBar struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newPageBar(w io.Writer) *pageBar {
	return &pageBar{w: w}
}

// Update matches pipeline.ProgressFunc.
func (b *pageBar) Update(current, total int) {
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionSetDescription("Capturing pages"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetPredictTime(false),
		)
	}
	_ = b.bar.Set(current)
}

// Close clears the bar line.
func (b *pageBar) Close() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// stderrIsTerminal reports whether progress can be drawn.
func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
