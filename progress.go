package goxr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

const (
	maxBarWidth  = 60
	updatePeriod = time.Second / 4
	speedWindow  = 5 * time.Second
)

func lineWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

type sample struct {
	at    time.Time
	bytes int64
}

// progressTracker draws a one line bar while an archive is processed.
// current counts packed bytes consumed against total; written counts
// unpacked bytes produced and drives the rate.
type progressTracker struct {
	out     io.Writer
	enabled bool

	current, written atomic.Int64
	total            int64
	entry            atomic.Value

	samples   []sample
	startTime time.Time
	lastLine  string

	done     chan struct{}
	finished chan struct{}
}

func newProgressTracker(out io.Writer, enabled bool) *progressTracker {
	if out == nil {
		out = os.Stdout
	}
	return &progressTracker{out: out, enabled: enabled}
}

// start resets the counters for an archive of total packed bytes and
// launches the ticker.
func (p *progressTracker) start(total int64) {
	if p == nil || !p.enabled {
		return
	}
	p.current.Store(0)
	p.written.Store(0)
	p.total = total
	p.samples = p.samples[:0]
	p.lastLine = ""
	p.startTime = time.Now()
	p.done = make(chan struct{})
	p.finished = make(chan struct{})

	go func() {
		ticker := time.NewTicker(updatePeriod)
		defer ticker.Stop()
		defer close(p.finished)
		for {
			select {
			case <-ticker.C:
				p.print()
			case <-p.done:
				p.print()
				fmt.Fprint(p.out, "\n")
				return
			}
		}
	}()
}

func (p *progressTracker) stop() {
	if p == nil || p.done == nil {
		return
	}
	close(p.done)
	<-p.finished
	p.done = nil
}

func (p *progressTracker) setEntry(name string) {
	if p != nil && p.enabled {
		p.entry.Store(name)
	}
}

func (p *progressTracker) addPacked(n int) {
	if p != nil && p.enabled {
		p.current.Add(int64(n))
	}
}

func (p *progressTracker) addUnpacked(n int) {
	if p != nil && p.enabled {
		p.written.Add(int64(n))
	}
}

func (p *progressTracker) print() {
	now := time.Now()

	frac := 1.0
	if p.total > 0 {
		frac = float64(p.current.Load()) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
	}

	p.samples = append(p.samples, sample{at: now, bytes: p.written.Load()})
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(p.samples) && !p.samples[i].at.After(cutoff) {
		i++
	}
	p.samples = p.samples[i:]

	var speed float64
	if n := len(p.samples); n > 1 {
		first, last := p.samples[0], p.samples[n-1]
		if secs := last.at.Sub(first.at).Seconds(); secs > 0 {
			speed = float64(last.bytes-first.bytes) / secs
		}
	}
	if frac >= 1 {
		if elapsed := now.Sub(p.startTime).Seconds(); elapsed > 0 {
			speed = float64(p.written.Load()) / elapsed
		}
	}

	name, _ := p.entry.Load().(string)
	info := fmt.Sprintf(" %3.2f%% %v/s %s", frac*100, humanize.Bytes(uint64(speed)), filepath.Base(name))
	barWidth := lineWidth(p.out) - len(info) - 2
	if barWidth > maxBarWidth {
		barWidth = maxBarWidth
	}
	if barWidth < 0 {
		barWidth = 0
	}
	filled := int(frac * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	line := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled) + "]" + info
	if line != p.lastLine {
		fmt.Fprintf(p.out, "\r\033[K%s", line)
		p.lastLine = line
	}
}
