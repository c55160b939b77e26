package ffmpeg

import (
	"strconv"
	"strings"
)

// Stats is one progress report from ffmpeg's -stats output. String fields
// keep ffmpeg's own formatting; absent keys keep the zero-ish defaults
// ffmpeg itself starts from.
type Stats struct {
	Frame   int64
	FPS     float64
	Q       float64
	Size    string
	Time    string
	Bitrate string
	Speed   string
}

func defaultStats() Stats {
	return Stats{
		Size:    "0kB",
		Time:    "00:00:00.00",
		Bitrate: "N/A",
		Speed:   "N/A",
	}
}

// parseStatsLine parses one carriage-return-terminated stats line, e.g.
//
//	frame=  123 fps= 30 q=-1.0 size=    1024KiB time=00:00:04.09 bitrate=2049.1kbits/s speed=   4x
//
// ffmpeg pads values, so a token can be either "key=value" or a bare "key="
// whose value is the following token.
func parseStatsLine(line string) Stats {
	stats := defaultStats()

	fields := strings.Fields(strings.TrimSpace(line))
	kv := make(map[string]string, len(fields))
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		eq := strings.Index(tok, "=")
		if eq < 0 {
			continue
		}
		key := tok[:eq]
		value := tok[eq+1:]
		if value == "" && i+1 < len(fields) && !strings.Contains(fields[i+1], "=") {
			i++
			value = fields[i]
		}
		kv[key] = value
	}

	if v, ok := kv["frame"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats.Frame = n
		}
	}
	if v, ok := kv["fps"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			stats.FPS = f
		}
	}
	if v, ok := kv["q"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			stats.Q = f
		}
	}
	if v, ok := kv["size"]; ok {
		stats.Size = v
	} else if v, ok := kv["Lsize"]; ok {
		// Final stats line labels the size "Lsize".
		stats.Size = v
	}
	if v, ok := kv["time"]; ok {
		stats.Time = v
	}
	if v, ok := kv["bitrate"]; ok {
		stats.Bitrate = v
	}
	if v, ok := kv["speed"]; ok {
		stats.Speed = v
	}
	return stats
}
