package hls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrStreamFinished signals the normal end of a broadcast: FC2 answers the
// playlist request with 403 once the stream is over. It never escapes
// Download.
var ErrStreamFinished = errors.New("stream finished")

const (
	// pollInterval is how often the live playlist is re-fetched.
	pollInterval = time.Second

	// idleTimeout ends the download when the playlist stops advertising
	// new fragments for this long.
	idleTimeout = 30 * time.Second

	// maxFragmentTries is how many times a fragment is re-fetched on a bad
	// HTTP status before an empty payload is substituted to keep the
	// output advancing.
	maxFragmentTries = 5

	// maxPlaylistFailures is how many consecutive playlist fetch failures
	// are tolerated before the broadcast is presumed over. FC2 can drop
	// the playlist without the 403 once a stream ends.
	maxPlaylistFailures = 3

	// reorderWait is how long the writer sleeps when the next in-order
	// fragment has not finished downloading yet.
	reorderWait = 100 * time.Millisecond
)

// fragment is one media segment URL pending download.
type fragment struct {
	url   string
	tries int
}

// Downloader streams a live HLS playlist to a writer. It polls the
// playlist, downloads fragments on a worker pool, and writes them back out
// in playlist order.
type Downloader struct {
	hc          *http.Client
	playlistURL string
	threads     int
	log         *slog.Logger
}

// NewDownloader builds a downloader for one playlist URL. threads below 1
// is treated as 1.
func NewDownloader(hc *http.Client, playlistURL string, threads int, logger *slog.Logger) *Downloader {
	if threads < 1 {
		threads = 1
	}
	return &Downloader{
		hc:          hc,
		playlistURL: playlistURL,
		threads:     threads,
		log:         logger,
	}
}

// Download runs the full pipeline until the stream ends, the context is
// cancelled, or the writer fails. onFragment, if non-nil, is called with
// the byte size of each fragment as it is written out.
func (d *Downloader) Download(ctx context.Context, w io.Writer, onFragment func(size int)) error {
	urls := newSequencedQueue[fragment]()
	data := newSequencedQueue[[]byte]()

	g, gctx := errgroup.WithContext(ctx)

	// Queue operations block without watching a context; closing the
	// queues on cancellation wakes every producer and consumer.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-gctx.Done():
			urls.Close()
			data.Close()
		case <-watchDone:
		}
	}()

	g.Go(func() error {
		defer urls.Close()
		return d.pollPlaylist(gctx, urls)
	})

	g.Go(func() error {
		defer data.Close()
		workers, wctx := errgroup.WithContext(gctx)
		for i := 0; i < d.threads; i++ {
			workers.Go(func() error {
				return d.downloadWorker(wctx, urls, data)
			})
		}
		return workers.Wait()
	})

	g.Go(func() error {
		return d.writeOrdered(gctx, data, w, onFragment)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// pollPlaylist fetches the playlist once per interval and enqueues the
// fragment URLs that appeared since the last poll. Returns nil when the
// stream ends, either by a 403 from the server or by the idle timeout.
func (d *Downloader) pollPlaylist(ctx context.Context, urls *sequencedQueue[fragment]) error {
	lastEnqueued := ""
	seq := 0
	lastNew := time.Now()
	failures := 0

	for {
		advertised, err := d.fetchPlaylist(ctx)
		if errors.Is(err, ErrStreamFinished) {
			d.log.Info("stream ended")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= maxPlaylistFailures {
				d.log.Info("playlist unreachable, stream presumed over",
					slog.String("error", err.Error()))
				return nil
			}
			d.log.Warn("failed to fetch playlist", slog.String("error", err.Error()))
		} else {
			failures = 0
		}

		fresh := newFragments(advertised, lastEnqueued)
		for _, u := range fresh {
			if err := urls.Push(seq, fragment{url: u}); err != nil {
				return nil
			}
			seq++
			lastEnqueued = u
		}
		if len(fresh) > 0 {
			lastNew = time.Now()
		} else if time.Since(lastNew) > idleTimeout {
			d.log.Info("no new fragments, stream presumed over")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// newFragments returns the entries strictly after the last enqueued URL.
// When that URL is no longer advertised (or nothing was enqueued yet) the
// whole window is new.
func newFragments(advertised []string, lastEnqueued string) []string {
	if lastEnqueued == "" {
		return advertised
	}
	for i, u := range advertised {
		if u == lastEnqueued {
			return advertised[i+1:]
		}
	}
	return advertised
}

// fetchPlaylist pulls the playlist and returns the fragment URLs it
// advertises, in order. Returns ErrStreamFinished when the server answers
// 403, which FC2 uses to signal the end of the broadcast.
func (d *Downloader) fetchPlaylist(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.playlistURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, ErrStreamFinished
	}
	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("playlist returned status %d", resp.StatusCode)
	}

	var advertised []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		advertised = append(advertised, line)
	}
	return advertised, scanner.Err()
}

// downloadWorker fetches fragments until the URL queue drains. A fragment
// that keeps failing with a bad status is retried with its sequence number
// preserved; once the retry budget is spent, or on a transport error, an
// empty payload takes its slot so ordering never stalls.
func (d *Downloader) downloadWorker(ctx context.Context, urls *sequencedQueue[fragment], data *sequencedQueue[[]byte]) error {
	for {
		seq, frag, err := urls.Pop()
		if err != nil {
			return nil
		}

		payload, retryable, err := d.fetchFragment(ctx, frag.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if retryable && frag.tries < maxFragmentTries {
				d.log.Warn("retrying fragment",
					slog.Int("seq", seq),
					slog.Int("tries", frag.tries+1),
					slog.String("error", err.Error()),
				)
				if rqErr := urls.Requeue(seq, fragment{url: frag.url, tries: frag.tries + 1}); rqErr != nil {
					return nil
				}
				continue
			}
			d.log.Error("fragment lost, substituting empty payload",
				slog.Int("seq", seq),
				slog.String("error", err.Error()),
			)
			payload = nil
		}

		if err := data.Push(seq, payload); err != nil {
			return nil
		}
	}
}

func (d *Downloader) fetchFragment(ctx context.Context, fragURL string) (payload []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fragURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := d.hc.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("fragment returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return body, false, nil
}

// writeOrdered drains the data queue in strict sequence order. A fragment
// popped ahead of its turn goes back on the queue while its predecessors
// finish downloading.
func (d *Downloader) writeOrdered(ctx context.Context, data *sequencedQueue[[]byte], w io.Writer, onFragment func(size int)) error {
	expected := 0
	for {
		seq, payload, err := data.Pop()
		if err != nil {
			return nil
		}

		if seq != expected {
			if err := data.Requeue(seq, payload); err != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reorderWait):
			}
			continue
		}

		if len(payload) > 0 {
			if _, err := w.Write(payload); err != nil {
				return fmt.Errorf("writing fragment %d: %w", seq, err)
			}
		}
		if onFragment != nil {
			onFragment(len(payload))
		}
		expected++
	}
}
