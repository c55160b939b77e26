package fc2

import (
	"fmt"
	"sort"
)

// StreamQuality maps quality names to the tens-digit group of a playlist mode.
var StreamQuality = map[string]int{
	"150Kbps": 10,
	"400Kbps": 20,
	"1.2Mbps": 30,
	"2Mbps":   40,
	"3Mbps":   50,
	"sound":   90,
}

// StreamLatency maps latency names to the ones digit of a playlist mode.
var StreamLatency = map[string]int{
	"low":  0,
	"high": 1,
	"mid":  2,
}

// Playlist is one stream variant advertised in the HLS information message.
// Mode packs quality (tens) and latency (ones); mode >= 90 is the
// audio-only "sound" stream.
type Playlist struct {
	URL  string `json:"url"`
	Mode int    `json:"mode"`
}

// HLSInformation is the payload of the get_hls_information response.
type HLSInformation struct {
	Playlists              []Playlist `json:"playlists"`
	PlaylistsHighLatency   []Playlist `json:"playlists_high_latency"`
	PlaylistsMiddleLatency []Playlist `json:"playlists_middle_latency"`
}

// Mode returns the packed mode for a quality/latency pair.
func Mode(quality, latency string) (int, error) {
	q, ok := StreamQuality[quality]
	if !ok {
		return 0, fmt.Errorf("unknown quality %q", quality)
	}
	l, ok := StreamLatency[latency]
	if !ok {
		return 0, fmt.Errorf("unknown latency %q", latency)
	}
	return q + l, nil
}

// FormatMode renders a packed mode back into its quality and latency names.
func FormatMode(mode int) string {
	quality := "unknown"
	for name, q := range StreamQuality {
		if q == mode/10*10 {
			quality = name
		}
	}
	latency := "unknown"
	for name, l := range StreamLatency {
		if l == mode%10 {
			latency = name
		}
	}
	return fmt.Sprintf("%s/%s", quality, latency)
}

// MergePlaylists flattens the three playlist groups into one list.
func MergePlaylists(info *HLSInformation) []Playlist {
	merged := make([]Playlist, 0,
		len(info.Playlists)+len(info.PlaylistsHighLatency)+len(info.PlaylistsMiddleLatency))
	merged = append(merged, info.Playlists...)
	merged = append(merged, info.PlaylistsHighLatency...)
	merged = append(merged, info.PlaylistsMiddleLatency...)
	return merged
}

// SortPlaylists orders playlists best-first. Audio-only modes (>= 90) rank
// below every video mode regardless of numeric value.
func SortPlaylists(playlists []Playlist) []Playlist {
	sorted := make([]Playlist, len(playlists))
	copy(sorted, playlists)
	key := func(p Playlist) int {
		if p.Mode >= 90 {
			return p.Mode - 90
		}
		return p.Mode
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return key(sorted[i]) > key(sorted[j])
	})
	return sorted
}

// PlaylistOrBest picks the entry matching mode from a best-first sorted
// list, or falls back to the top-ranked entry. The second return reports
// whether the match was exact; the caller logs the fallback.
func PlaylistOrBest(sorted []Playlist, mode int) (Playlist, bool, error) {
	if len(sorted) == 0 {
		return Playlist{}, false, ErrEmptyPlaylist
	}
	for _, p := range sorted {
		if p.Mode == mode {
			return p, true, nil
		}
	}
	return sorted[0], false, nil
}
