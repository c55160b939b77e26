// Package ffmpeg wraps the ffmpeg binary for the stream-copy remux step and
// reports its progress and resource usage while it runs.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// FindBinary locates the ffmpeg executable. The FC2DL_FFMPEG_BINARY
// environment variable wins over PATH lookup.
func FindBinary() (string, error) {
	if p := os.Getenv("FC2DL_FFMPEG_BINARY"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("FC2DL_FFMPEG_BINARY points to %s: %w", p, err)
		}
		return p, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return path, nil
}

// RemuxOptions controls one remux invocation.
type RemuxOptions struct {
	// ExtractAudio drops the video track (-vn) so the output is audio only.
	ExtractAudio bool

	// OnStats receives each progress report ffmpeg prints.
	OnStats func(Stats)

	// Monitor, when set, samples the ffmpeg process's CPU and memory while
	// it runs and logs them at debug level.
	Monitor bool
}

// Remuxer runs ffmpeg stream-copy remuxes.
type Remuxer struct {
	binPath string
	log     *slog.Logger
}

// NewRemuxer returns a remuxer using the given ffmpeg binary, or the
// located one when binaryPath is empty.
func NewRemuxer(binaryPath string, logger *slog.Logger) (*Remuxer, error) {
	path := binaryPath
	if path == "" {
		var err error
		path, err = FindBinary()
		if err != nil {
			return nil, err
		}
	}
	logger.Debug("using ffmpeg binary", slog.String("path", path))
	return &Remuxer{binPath: path, log: logger}, nil
}

// Remux copies the streams of input into output without re-encoding. On
// context cancellation ffmpeg receives SIGINT so it can finalize the output
// container; it is never force-killed.
func (r *Remuxer) Remux(ctx context.Context, input, output string, opts RemuxOptions) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "fatal",
		"-stats",
		"-i", input,
	}
	if opts.ExtractAudio {
		args = append(args, "-vn")
	}
	args = append(args,
		"-c", "copy",
		"-movflags", "faststart",
		output,
	)

	cmd := exec.CommandContext(ctx, r.binPath, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching to ffmpeg stderr: %w", err)
	}

	r.log.Debug("starting ffmpeg", slog.String("args", strings.Join(args, " ")))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	var monitor *ProcessMonitor
	if opts.Monitor {
		monitor = NewProcessMonitor(cmd.Process.Pid, r.log)
		monitor.Start()
		defer monitor.Stop()
	}

	r.consumeStats(stderr, opts.OnStats)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			// Interrupted on purpose; ffmpeg exits non-zero after SIGINT
			// even when the output was finalized cleanly.
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// consumeStats reads ffmpeg's stderr, which overwrites its progress line in
// place using carriage returns rather than newlines.
func (r *Remuxer) consumeStats(stderr io.Reader, onStats func(Stats)) {
	reader := bufio.NewReader(stderr)
	for {
		chunk, err := reader.ReadString('\r')
		line := strings.Trim(chunk, "\r\n ")
		if line != "" {
			if strings.Contains(line, "=") {
				stats := parseStatsLine(line)
				if onStats != nil {
					onStats(stats)
				}
			} else {
				r.log.Warn("ffmpeg: " + line)
			}
		}
		if err != nil {
			return
		}
	}
}
