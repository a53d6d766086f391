// Package progress reports the apply phase of a sync: removals, uploads and
// the wait for uploaded sources to appear.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Phase is one step of applying a plan
type Phase string

const (
	PhaseDelete Phase = "delete"
	PhaseUpload Phase = "upload"
	PhaseWait   Phase = "wait"
)

// Reporter handles progress reporting for remote operations
type Reporter interface {
	// SetTotal announces how many items and bytes a phase covers
	SetTotal(phase Phase, items int, bytes int64)
	// Start begins one item
	Start(phase Phase, title string, bytes int64)
	// Complete marks the current item as done
	Complete(title string)
	// Error reports a failed item
	Error(title string, err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	Phase          Phase
	Title          string
	ItemsCompleted int
	ItemsTotal     int
	BytesCompleted int64
	BytesTotal     int64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdatePhase UpdateType = iota
	UpdateStart
	UpdateComplete
	UpdateError
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback       Callback
	mu             sync.Mutex
	phase          Phase
	currentTitle   string
	currentBytes   int64
	itemsTotal     int
	bytesTotal     int64
	itemsCompleted int
	bytesCompleted int64
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{callback: callback}
}

// SetTotal resets the counters for a new phase
func (r *CallbackReporter) SetTotal(phase Phase, items int, bytes int64) {
	r.mu.Lock()
	r.phase = phase
	r.itemsTotal = items
	r.bytesTotal = bytes
	r.itemsCompleted = 0
	r.bytesCompleted = 0
	update := r.snapshot(UpdatePhase)
	r.mu.Unlock()

	r.emit(update)
}

// Start begins tracking an item
func (r *CallbackReporter) Start(phase Phase, title string, bytes int64) {
	r.mu.Lock()
	r.phase = phase
	r.currentTitle = title
	r.currentBytes = bytes
	update := r.snapshot(UpdateStart)
	r.mu.Unlock()

	r.emit(update)
}

// Complete marks the current item as complete
func (r *CallbackReporter) Complete(title string) {
	r.mu.Lock()
	r.itemsCompleted++
	if title == r.currentTitle {
		r.bytesCompleted += r.currentBytes
	}
	r.currentTitle = title
	update := r.snapshot(UpdateComplete)
	r.mu.Unlock()

	r.emit(update)
}

// Error reports a failed item
func (r *CallbackReporter) Error(title string, err error) {
	r.mu.Lock()
	r.currentTitle = title
	update := r.snapshot(UpdateError)
	update.Error = err
	r.mu.Unlock()

	r.emit(update)
}

// snapshot must be called with mu held
func (r *CallbackReporter) snapshot(t UpdateType) Update {
	return Update{
		Type:           t,
		Phase:          r.phase,
		Title:          r.currentTitle,
		ItemsCompleted: r.itemsCompleted,
		ItemsTotal:     r.itemsTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
}

// emit runs outside the lock so callbacks may call back into the reporter
func (r *CallbackReporter) emit(u Update) {
	if r.callback != nil {
		r.callback(u)
	}
}

// NewWriterReporter prints one line per update to w
func NewWriterReporter(w io.Writer) *CallbackReporter {
	var mu sync.Mutex
	return NewCallbackReporter(func(u Update) {
		line := FormatUpdate(u)
		if line == "" {
			return
		}
		mu.Lock()
		fmt.Fprintln(w, line)
		mu.Unlock()
	})
}

// ForTerminal returns a writer reporter when f is a terminal and a
// NullReporter otherwise, so piped JSON output stays clean
func ForTerminal(f *os.File) Reporter {
	if f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return NewWriterReporter(f)
	}
	return NullReporter{}
}

// FormatUpdate renders an update as a single status line
func FormatUpdate(u Update) string {
	counter := fmt.Sprintf("[%s %d/%d]", u.Phase, u.ItemsCompleted, u.ItemsTotal)
	switch u.Type {
	case UpdatePhase:
		if u.ItemsTotal == 0 {
			return ""
		}
		if u.BytesTotal > 0 {
			return fmt.Sprintf("%s %d item(s), %s", counter, u.ItemsTotal, FormatBytes(u.BytesTotal))
		}
		return fmt.Sprintf("%s %d item(s)", counter, u.ItemsTotal)
	case UpdateStart:
		return fmt.Sprintf("%s %s ...", counter, u.Title)
	case UpdateComplete:
		bar := FormatProgress(int64(u.ItemsCompleted), int64(u.ItemsTotal), 20)
		return strings.TrimSpace(fmt.Sprintf("%s %s done %s", counter, u.Title, bar))
	case UpdateError:
		return fmt.Sprintf("%s %s failed: %v", counter, u.Title, u.Error)
	}
	return ""
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) SetTotal(Phase, int, int64) {}
func (NullReporter) Start(Phase, string, int64) {}
func (NullReporter) Complete(string)            {}
func (NullReporter) Error(string, error)        {}

// FormatBytes formats bytes into a human-readable IEC string
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			bar[i] = '='
		case i == filled:
			bar[i] = '>'
		default:
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
