package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/panbanda/orphan/internal/logging"
)

func TestNewTracker(t *testing.T) {
	tests := []struct {
		name  string
		total int
	}{
		{"standard tracker", 100},
		{"zero total", 0},
		{"negative total", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tracker := newTracker(&buf, "Parsing", tt.total)
			if tracker.bar == nil {
				t.Fatal("tracker.bar should not be nil")
			}
			if tracker.label != "Parsing" {
				t.Errorf("tracker.label = %q", tracker.label)
			}
			tracker.Tick()
			tracker.Finish()
		})
	}
}

func TestTrackerTickConcurrent(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTracker(&buf, "Concurrent", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Tick()
			}
		}()
	}
	wg.Wait()
	tracker.Finish()
}

func TestDisplayVerboseLogsLines(t *testing.T) {
	var logBuf, barBuf bytes.Buffer
	d := newDisplay(&barBuf, "Parsing", logging.New(&logBuf, true), true)

	d.Update(1, 2, "/src/util.c")
	d.Update(2, 2, "/src/main.c")
	d.Finish()

	want := "[1/2] Parsed util.c\n[2/2] Parsed main.c\n"
	if logBuf.String() != want {
		t.Errorf("log = %q, want %q", logBuf.String(), want)
	}
	if barBuf.Len() != 0 {
		t.Errorf("no bar expected in verbose mode, got %q", barBuf.String())
	}
}

func TestDisplayDrawsBarOnTerminal(t *testing.T) {
	var logBuf, barBuf bytes.Buffer
	d := newDisplay(&barBuf, "Parsing", logging.New(&logBuf, false), true)

	d.Update(1, 3, "a.c")
	d.Update(2, 3, "b.c")
	if !strings.Contains(barBuf.String(), "Parsing") {
		t.Errorf("bar output missing label: %q", barBuf.String())
	}
	d.Finish()
	if logBuf.Len() != 0 {
		t.Errorf("unexpected log output %q", logBuf.String())
	}
}

func TestDisplaySilentWithoutTerminal(t *testing.T) {
	var logBuf, barBuf bytes.Buffer
	d := newDisplay(&barBuf, "Parsing", logging.New(&logBuf, false), false)

	d.Update(1, 1, "a.c")
	d.Finish()
	if barBuf.Len() != 0 || logBuf.Len() != 0 {
		t.Errorf("expected no output, got bar %q log %q", barBuf.String(), logBuf.String())
	}
}
