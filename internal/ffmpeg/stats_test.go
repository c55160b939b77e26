package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatsLine(t *testing.T) {
	t.Run("padded values", func(t *testing.T) {
		line := "frame=  123 fps= 30 q=-1.0 size=    1024KiB time=00:00:04.09 bitrate=2049.1kbits/s speed=   4x"
		s := parseStatsLine(line)

		assert.Equal(t, int64(123), s.Frame)
		assert.Equal(t, 30.0, s.FPS)
		assert.Equal(t, -1.0, s.Q)
		assert.Equal(t, "1024KiB", s.Size)
		assert.Equal(t, "00:00:04.09", s.Time)
		assert.Equal(t, "2049.1kbits/s", s.Bitrate)
		assert.Equal(t, "4x", s.Speed)
	})

	t.Run("final line uses Lsize", func(t *testing.T) {
		line := "frame= 5000 fps=120 q=-1.0 Lsize=   98765KiB time=00:11:22.33 bitrate=1182.0kbits/s speed= 9.8x"
		s := parseStatsLine(line)

		assert.Equal(t, int64(5000), s.Frame)
		assert.Equal(t, "98765KiB", s.Size)
	})

	t.Run("audio only line", func(t *testing.T) {
		line := "size=     512KiB time=00:00:32.61 bitrate= 128.6kbits/s speed=65.3x"
		s := parseStatsLine(line)

		assert.Equal(t, int64(0), s.Frame)
		assert.Equal(t, "512KiB", s.Size)
		assert.Equal(t, "00:00:32.61", s.Time)
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		s := parseStatsLine("frame=1")

		assert.Equal(t, int64(1), s.Frame)
		assert.Equal(t, "0kB", s.Size)
		assert.Equal(t, "00:00:00.00", s.Time)
		assert.Equal(t, "N/A", s.Bitrate)
		assert.Equal(t, "N/A", s.Speed)
	})
}
