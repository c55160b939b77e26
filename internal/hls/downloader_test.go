package hls

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOrigin is a minimal live HLS origin: each poll reveals more
// fragments, and once the script is exhausted the playlist answers 403
// like FC2 does at the end of a broadcast.
type fakeOrigin struct {
	mu       sync.Mutex
	polls    int
	script   [][]int // fragment indices visible at each poll
	fragFail map[int]bool
	srv      *httptest.Server
}

func newFakeOrigin(t *testing.T, script [][]int, fragFail map[int]bool) *fakeOrigin {
	t.Helper()
	o := &fakeOrigin{script: script, fragFail: fragFail}

	mux := http.NewServeMux()
	mux.HandleFunc("/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		poll := o.polls
		o.polls++
		o.mu.Unlock()

		if poll >= len(o.script) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var b strings.Builder
		b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
		for _, idx := range o.script[poll] {
			b.WriteString("#EXTINF:1.0,\n")
			fmt.Fprintf(&b, "%s/frag/%d\n", o.srv.URL, idx)
		}
		w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/frag/", func(w http.ResponseWriter, r *http.Request) {
		idx := strings.TrimPrefix(r.URL.Path, "/frag/")
		var n int
		fmt.Sscanf(idx, "%d", &n)
		if o.fragFail[n] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "seg%s;", idx)
	})

	o.srv = httptest.NewServer(mux)
	t.Cleanup(o.srv.Close)
	return o
}

func TestDownloaderStreamsInOrder(t *testing.T) {
	origin := newFakeOrigin(t, [][]int{
		{0, 1},
		{0, 1, 2, 3},
	}, nil)

	d := NewDownloader(origin.srv.Client(), origin.srv.URL+"/playlist.m3u8", 4, testLogger())

	var buf bytes.Buffer
	var sizes []int
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := d.Download(ctx, &buf, func(size int) { sizes = append(sizes, size) })
	require.NoError(t, err)

	assert.Equal(t, "seg0;seg1;seg2;seg3;", buf.String())
	assert.Len(t, sizes, 4)
}

func TestDownloaderSubstitutesLostFragment(t *testing.T) {
	origin := newFakeOrigin(t, [][]int{
		{0, 1, 2},
	}, map[int]bool{1: true})

	d := NewDownloader(origin.srv.Client(), origin.srv.URL+"/playlist.m3u8", 2, testLogger())

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := d.Download(ctx, &buf, nil)
	require.NoError(t, err)

	// The broken fragment is dropped but its neighbors stay in order.
	assert.Equal(t, "seg0;seg2;", buf.String())
}

func TestDownloaderStopsWhenPlaylistUnreachable(t *testing.T) {
	// FC2 sometimes drops the playlist without the usual 403 once the
	// broadcast is over; repeated failures end the session cleanly.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), srv.URL+"/playlist.m3u8", 1, testLogger())

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := d.Download(ctx, &buf, nil)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestDownloaderCancellation(t *testing.T) {
	// A playlist that never ends.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".m3u8") {
			fmt.Fprintf(w, "#EXTM3U\n%s/frag/0\n", "http://"+r.Host)
			return
		}
		w.Write([]byte("seg0;"))
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), srv.URL+"/playlist.m3u8", 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	var buf bytes.Buffer
	err := d.Download(ctx, &buf, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
