package fc2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := []struct {
		name    string
		quality string
		latency string
		want    int
		wantErr bool
	}{
		{name: "best video mid latency", quality: "3Mbps", latency: "mid", want: 52},
		{name: "lowest video low latency", quality: "150Kbps", latency: "low", want: 10},
		{name: "sound only high latency", quality: "sound", latency: "high", want: 91},
		{name: "unknown quality", quality: "8K", latency: "mid", wantErr: true},
		{name: "unknown latency", quality: "2Mbps", latency: "instant", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mode(tt.quality, tt.latency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMode(t *testing.T) {
	assert.Equal(t, "3Mbps/mid", FormatMode(52))
	assert.Equal(t, "150Kbps/low", FormatMode(10))
	assert.Equal(t, "sound/high", FormatMode(91))
}

func TestSortPlaylists(t *testing.T) {
	playlists := []Playlist{
		{URL: "sound", Mode: 92},
		{URL: "low", Mode: 30},
		{URL: "best", Mode: 52},
		{URL: "mid", Mode: 42},
	}

	sorted := SortPlaylists(playlists)

	require.Len(t, sorted, 4)
	assert.Equal(t, "best", sorted[0].URL)
	assert.Equal(t, "mid", sorted[1].URL)
	assert.Equal(t, "low", sorted[2].URL)
	// Audio-only ranks below every video variant despite its larger mode.
	assert.Equal(t, "sound", sorted[3].URL)

	// Input order is untouched.
	assert.Equal(t, 92, playlists[0].Mode)
}

func TestMergePlaylists(t *testing.T) {
	info := &HLSInformation{
		Playlists:              []Playlist{{Mode: 50}},
		PlaylistsHighLatency:   []Playlist{{Mode: 51}},
		PlaylistsMiddleLatency: []Playlist{{Mode: 52}},
	}

	merged := MergePlaylists(info)

	require.Len(t, merged, 3)
	assert.Equal(t, []Playlist{{Mode: 50}, {Mode: 51}, {Mode: 52}}, merged)
}

func TestPlaylistOrBest(t *testing.T) {
	sorted := SortPlaylists([]Playlist{
		{URL: "a", Mode: 52},
		{URL: "b", Mode: 32},
		{URL: "c", Mode: 92},
	})

	t.Run("exact match", func(t *testing.T) {
		p, exact, err := PlaylistOrBest(sorted, 32)
		require.NoError(t, err)
		assert.True(t, exact)
		assert.Equal(t, "b", p.URL)
	})

	t.Run("falls back to best", func(t *testing.T) {
		p, exact, err := PlaylistOrBest(sorted, 40)
		require.NoError(t, err)
		assert.False(t, exact)
		assert.Equal(t, "a", p.URL)
	})

	t.Run("empty list", func(t *testing.T) {
		_, _, err := PlaylistOrBest(nil, 52)
		assert.ErrorIs(t, err, ErrEmptyPlaylist)
	})
}
