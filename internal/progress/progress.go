// Package progress renders per-translation-unit progress on stderr.
package progress

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/panbanda/orphan/internal/logging"
	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar for translation unit processing.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
}

func newTracker(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, label: label}
}

// Tick increments the progress by 1. Safe for concurrent use.
func (t *Tracker) Tick() {
	t.bar.Add(1)
}

// Finish clears the bar.
func (t *Tracker) Finish() {
	t.bar.Finish()
	t.bar.Clear()
}

// Display turns analyzer progress callbacks into a bar on a terminal or
// into "[i/N]" debug lines in verbose mode. Otherwise it stays silent.
type Display struct {
	mu      sync.Mutex
	w       io.Writer
	log     *logging.Logger
	label   string
	enabled bool
	tracker *Tracker
}

// NewDisplay creates a display writing to stderr.
func NewDisplay(label string, log *logging.Logger) *Display {
	return newDisplay(os.Stderr, label, log, logging.Terminal(os.Stderr))
}

func newDisplay(w io.Writer, label string, log *logging.Logger, terminal bool) *Display {
	return &Display{
		w:       w,
		log:     log,
		label:   label,
		enabled: terminal && !log.Verbose(),
	}
}

// Update records one finished unit. Its signature matches
// analyzer.ProgressFunc.
func (d *Display) Update(current, total int, file string) {
	if d.log.Verbose() {
		d.log.Debugf("[%d/%d] Parsed %s", current, total, filepath.Base(file))
		return
	}
	if !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tracker == nil {
		d.tracker = newTracker(d.w, d.label, total)
	}
	d.tracker.Tick()
}

// Finish clears the bar if one was drawn.
func (d *Display) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tracker != nil {
		d.tracker.Finish()
		d.tracker = nil
	}
}
