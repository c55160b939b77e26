package recorder

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// logEvery is how often non-TTY progress is emitted to the log.
const logEvery = 10 * time.Second

// Progress reports download progress. On a terminal it redraws one status
// line in place; otherwise it logs a summary every few seconds so log files
// are not flooded with per-fragment noise.
type Progress struct {
	out   io.Writer
	isTTY bool
	log   *slog.Logger

	mu        sync.Mutex
	start     time.Time
	bytes     uint64
	fragments int
	lastEmit  time.Time
	dirty     bool
}

// NewProgress builds a progress reporter writing terminal output to stderr.
func NewProgress(logger *slog.Logger) *Progress {
	return &Progress{
		out:   os.Stderr,
		isTTY: term.IsTerminal(int(os.Stderr.Fd())),
		log:   logger,
		start: time.Now(),
	}
}

// AddFragment records one downloaded fragment of the given size.
func (p *Progress) AddFragment(size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragments++
	p.bytes += uint64(size)
	p.emitLocked(false)
}

// Waiting renders a "waiting for broadcast" status tick.
func (p *Progress) Waiting(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isTTY {
		fmt.Fprintf(p.out, "\rWaiting for %s to go live... (%s)",
			channelID, time.Since(p.start).Round(time.Second))
		p.dirty = true
		return
	}
	if time.Since(p.lastEmit) >= logEvery {
		p.log.Info("waiting for broadcast to start", slog.String("channel_id", channelID))
		p.lastEmit = time.Now()
	}
}

// Finish clears the status line and logs the final totals.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	if p.fragments == 0 {
		return
	}
	p.log.Info("download finished",
		slog.Int("fragments", p.fragments),
		slog.String("size", humanize.Bytes(p.bytes)),
		slog.Duration("elapsed", time.Since(p.start).Round(time.Second)),
	)
}

// Clear erases the in-place status line so regular log output does not land
// mid-line. No-op off-terminal.
func (p *Progress) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

func (p *Progress) clearLocked() {
	if p.isTTY && p.dirty {
		fmt.Fprint(p.out, "\r\033[K")
		p.dirty = false
	}
}

func (p *Progress) emitLocked(force bool) {
	elapsed := time.Since(p.start)
	rate := float64(p.bytes) / elapsed.Seconds()

	if p.isTTY {
		fmt.Fprintf(p.out, "\rRecording: %d fragments, %s (%s/s)   ",
			p.fragments, humanize.Bytes(p.bytes), humanize.Bytes(uint64(rate)))
		p.dirty = true
		return
	}
	if force || time.Since(p.lastEmit) >= logEvery {
		p.log.Info("recording in progress",
			slog.Int("fragments", p.fragments),
			slog.String("size", humanize.Bytes(p.bytes)),
			slog.String("rate", humanize.Bytes(uint64(rate))+"/s"),
		)
		p.lastEmit = time.Now()
	}
}
