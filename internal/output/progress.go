package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pmatheus/nsrl-filter/internal/models"
	"golang.org/x/term"
)

const progressInterval = 200 * time.Millisecond

// Progress redraws a single status line while a run is going
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	start   time.Time
	last    time.Time
	drawn   bool
}

// NewProgress returns a progress line on f, disabled unless f is a terminal
func NewProgress(f *os.File) *Progress {
	return NewProgressWriter(f, term.IsTerminal(int(f.Fd())))
}

// NewProgressWriter returns a progress line on w
func NewProgressWriter(w io.Writer, enabled bool) *Progress {
	return &Progress{w: w, enabled: enabled, start: time.Now()}
}

// Update redraws the line, at most every progressInterval
func (p *Progress) Update(s models.Snapshot) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.drawn && now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	p.drawn = true

	elapsed := now.Sub(p.start)
	rate := int64(0)
	if secs := elapsed.Seconds(); secs > 0 {
		rate = int64(float64(s.Total) / secs)
	}
	fmt.Fprintf(p.w, "\r\033[K%s records  known %s  unknown %s  dup %s  (%s/s)",
		humanize.Comma(s.Total),
		humanize.Comma(s.Known),
		humanize.Comma(s.Unknown),
		humanize.Comma(s.Duplicate),
		humanize.Comma(rate))
}

// Done ends the progress line so later output starts on a fresh line
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
