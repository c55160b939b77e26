package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fc2dl/fc2dl/internal/config"
	"github.com/fc2dl/fc2dl/internal/cookies"
	"github.com/fc2dl/fc2dl/internal/fc2"
	"github.com/fc2dl/fc2dl/internal/ffmpeg"
	"github.com/fc2dl/fc2dl/internal/hls"
	"github.com/fc2dl/fc2dl/internal/observability"
	"github.com/fc2dl/fc2dl/internal/version"
)

// disconnectGrace is how long in-flight fragments get to land after the
// control channel drops before the download is cancelled.
const disconnectGrace = 250 * time.Millisecond

// Recorder runs one recording session for one channel.
type Recorder struct {
	cfg       *config.Config
	channelID string
	log       *slog.Logger
	hc        *http.Client
}

// New builds a recorder for the channel, loading the cookie jar from the
// configured cookies file.
func New(cfg *config.Config, channelID string, logger *slog.Logger) (*Recorder, error) {
	jar, err := cookies.NewJar(cfg.Recording.CookiesFile)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		cfg:       cfg,
		channelID: channelID,
		log:       logger,
		hc: &http.Client{
			Jar:       jar,
			Timeout:   cfg.HTTP.Timeout,
			Transport: userAgentTransport{base: http.DefaultTransport},
		},
	}, nil
}

// userAgentTransport stamps the client identity on every outgoing request.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", version.UserAgent())
	return t.base.RoundTrip(req)
}

// Run records the channel until the broadcast ends or the context is
// cancelled, then post-processes the capture. Post-processing survives
// cancellation so an interrupted recording still yields a playable file.
func (r *Recorder) Run(ctx context.Context) error {
	sessionID := strings.Split(uuid.NewString(), "-")[0]
	sessionLog := observability.WithSession(r.log, sessionID)
	log := observability.WithComponent(sessionLog, "recorder")
	log.Info("starting recording session", slog.String("channel_id", r.channelID))

	client := fc2.NewClient(r.hc, r.channelID, observability.WithComponent(sessionLog, "fc2"))
	progress := NewProgress(log)

	online, err := client.IsOnline(ctx, true)
	if err != nil {
		return err
	}
	if !online {
		if !r.cfg.Recording.WaitForLive {
			return fc2.ErrNotOnline
		}
		log.Info("channel is offline, waiting for broadcast",
			slog.Duration("poll_interval", r.cfg.Recording.WaitPollInterval))
		if err := client.WaitForOnline(ctx, r.cfg.Recording.WaitPollInterval, func() {
			progress.Waiting(r.channelID)
		}); err != nil {
			return err
		}
		progress.Clear()
	}

	meta, err := client.GetMeta(ctx, true)
	if err != nil {
		return err
	}
	log.Info("channel is live",
		slog.String("title", meta.ChannelData.Title),
		slog.String("broadcaster", meta.ProfileData.Name),
	)

	vars := TemplateVars{
		ChannelID:   r.channelID,
		ChannelName: meta.ProfileData.Name,
		Date:        time.Now(),
		Title:       meta.ChannelData.Title,
		Ext:         "ts",
	}
	tsName, err := FormatOutput(r.cfg.Recording.OutputTemplate, vars)
	if err != nil {
		return err
	}
	tsPath, err := PrepareFile(tsName)
	if err != nil {
		return err
	}

	if r.cfg.Recording.WriteInfoJSON {
		if err := r.writeInfoJSON(tsPath, meta, log); err != nil {
			log.Error("failed to write info JSON", slog.String("error", err.Error()))
		}
	}
	if r.cfg.Recording.WriteThumbnail {
		if err := r.writeThumbnail(ctx, tsPath, meta, log); err != nil {
			log.Error("failed to write thumbnail", slog.String("error", err.Error()))
		}
	}

	recordErr := r.record(ctx, client, tsPath, progress, sessionLog)

	var disconnect *fc2.DisconnectError
	switch {
	case errors.Is(recordErr, context.Canceled):
		log.Info("recording interrupted, finalizing output")
		recordErr = nil
	case errors.As(recordErr, &disconnect):
		// Server-side disconnection ends the session but is not a
		// failure; whatever was captured still gets finalized.
		log.Warn("server ended the session", slog.String("reason", disconnect.Error()))
		recordErr = nil
	case recordErr != nil:
		log.Error("recording ended with error", slog.String("error", recordErr.Error()))
	}

	// Post-processing runs on a detached context so a single interrupt
	// does not abandon the remux.
	postErr := r.postProcess(context.WithoutCancel(ctx), tsPath, vars, sessionLog)
	return errors.Join(recordErr, postErr)
}

// record drives the control channel, the HLS pipeline, and the chat writer
// until the broadcast ends.
func (r *Recorder) record(ctx context.Context, client *fc2.Client, tsPath string, progress *Progress, sessionLog *slog.Logger) error {
	log := observability.WithComponent(sessionLog, "recorder")

	wsURL, err := client.GetWebSocketURL(ctx)
	if err != nil {
		return err
	}

	var dump io.Writer
	if r.cfg.Recording.DumpWebsocket {
		dumpFile, err := os.Create(SiblingPath(tsPath, ".fc2ws.txt"))
		if err != nil {
			return fmt.Errorf("creating websocket dump file: %w", err)
		}
		defer dumpFile.Close()
		dump = dumpFile
	}

	ws, err := fc2.Dial(ctx, wsURL, r.hc.Jar, dump, observability.WithComponent(sessionLog, "ws"))
	if err != nil {
		return err
	}
	defer ws.Close()

	playlist, err := r.selectPlaylist(ctx, ws, log)
	if err != nil {
		return err
	}

	out, err := os.Create(tsPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	downloader := hls.NewDownloader(r.hc, playlist.URL, r.cfg.Recording.Threads,
		observability.WithComponent(sessionLog, "hls"))

	g, gctx := errgroup.WithContext(ctx)
	dlCtx, dlCancel := context.WithCancel(gctx)
	defer dlCancel()

	if r.cfg.Recording.WriteChat {
		chatPath := SiblingPath(tsPath, ".fc2chat.json")
		g.Go(func() error {
			return writeChat(chatPath, ws.Comments(), log)
		})
	}

	g.Go(func() error {
		err := ws.WaitDisconnection(gctx)
		select {
		case <-time.After(disconnectGrace):
		case <-gctx.Done():
		}
		dlCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer ws.Close()
		err := downloader.Download(dlCtx, out, progress.AddFragment)
		if errors.Is(err, context.Canceled) && gctx.Err() == nil {
			// The control channel ended first; that reason wins.
			return nil
		}
		return err
	})

	err = g.Wait()
	progress.Finish()
	return err
}

// selectPlaylist fetches the playlist catalog and picks the configured
// quality/latency, falling back to the best available variant.
func (r *Recorder) selectPlaylist(ctx context.Context, ws *fc2.WebSocket, log *slog.Logger) (fc2.Playlist, error) {
	info, err := ws.GetHLSInformation(ctx)
	if err != nil {
		return fc2.Playlist{}, err
	}

	mode, err := fc2.Mode(r.cfg.Recording.Quality, r.cfg.Recording.Latency)
	if err != nil {
		return fc2.Playlist{}, err
	}
	sorted := fc2.SortPlaylists(fc2.MergePlaylists(info))
	playlist, exact, err := fc2.PlaylistOrBest(sorted, mode)
	if err != nil {
		return fc2.Playlist{}, err
	}
	if !exact {
		log.Warn("requested stream variant unavailable, using best",
			slog.String("requested", fc2.FormatMode(mode)),
			slog.String("using", fc2.FormatMode(playlist.Mode)),
		)
	} else {
		log.Info("selected stream variant", slog.String("mode", fc2.FormatMode(playlist.Mode)))
	}
	return playlist, nil
}

// postProcess remuxes the raw capture into its final container and cleans
// up intermediates. An empty capture is not a failure: a broadcast that
// ends or disconnects before any fragment lands still exits cleanly.
func (r *Recorder) postProcess(ctx context.Context, tsPath string, vars TemplateVars, sessionLog *slog.Logger) error {
	log := observability.WithComponent(sessionLog, "recorder")

	st, err := os.Stat(tsPath)
	if err != nil || st.Size() == 0 {
		os.Remove(tsPath)
		log.Warn("no stream data was captured, nothing to post-process")
		return nil
	}

	if !r.cfg.Recording.Remux {
		log.Info("recording saved", slog.String("path", tsPath))
		return nil
	}

	remuxer, err := ffmpeg.NewRemuxer(r.cfg.FFmpeg.BinaryPath,
		observability.WithComponent(sessionLog, "ffmpeg"))
	if err != nil {
		return err
	}
	onStats := func(s ffmpeg.Stats) {
		log.Debug("remux progress",
			slog.String("time", s.Time),
			slog.String("size", s.Size),
			slog.String("speed", s.Speed),
		)
	}

	// The sound-only variant has no video track, so its container is m4a.
	vars.Ext = "mp4"
	if r.cfg.Recording.Quality == "sound" {
		vars.Ext = "m4a"
	}
	finalName, err := FormatOutput(r.cfg.Recording.OutputTemplate, vars)
	if err != nil {
		return err
	}
	finalPath, err := PrepareFile(finalName)
	if err != nil {
		return err
	}

	log.Info("remuxing recording", slog.String("output", finalPath))
	err = remuxer.Remux(ctx, tsPath, finalPath, ffmpeg.RemuxOptions{
		Monitor: true,
		OnStats: onStats,
	})
	if err != nil {
		return fmt.Errorf("remuxing failed, keeping raw capture %s: %w", tsPath, err)
	}

	if r.cfg.Recording.ExtractAudio && vars.Ext != "m4a" {
		vars.Ext = "m4a"
		audioName, err := FormatOutput(r.cfg.Recording.OutputTemplate, vars)
		if err != nil {
			return err
		}
		audioPath, err := PrepareFile(audioName)
		if err != nil {
			return err
		}
		log.Info("extracting audio", slog.String("output", audioPath))
		err = remuxer.Remux(ctx, tsPath, audioPath, ffmpeg.RemuxOptions{
			ExtractAudio: true,
			Monitor:      true,
			OnStats:      onStats,
		})
		if err != nil {
			return fmt.Errorf("audio extraction failed: %w", err)
		}
	}

	if !r.cfg.Recording.KeepIntermediates {
		if err := os.Remove(tsPath); err != nil {
			log.Warn("could not remove intermediate file",
				slog.String("path", tsPath),
				slog.String("error", err.Error()),
			)
		}
	}
	log.Info("recording saved", slog.String("path", finalPath))
	return nil
}

// writeInfoJSON stores the raw metadata snapshot next to the recording.
func (r *Recorder) writeInfoJSON(tsPath string, meta *fc2.Meta, log *slog.Logger) error {
	infoPath := SiblingPath(tsPath, ".info.json")
	if err := os.WriteFile(infoPath, meta.Raw, 0o644); err != nil {
		return err
	}
	log.Debug("wrote info JSON", slog.String("path", infoPath))
	return nil
}

// writeThumbnail downloads the channel image next to the recording. The
// extension follows the image URL.
func (r *Recorder) writeThumbnail(ctx context.Context, tsPath string, meta *fc2.Meta, log *slog.Logger) error {
	imageURL := meta.ChannelData.Image
	if imageURL == "" {
		return errors.New("channel has no thumbnail image")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		return fmt.Errorf("thumbnail request returned status %d", resp.StatusCode)
	}

	ext := path.Ext(resp.Request.URL.Path)
	if ext == "" {
		ext = ".jpg"
	}
	thumbPath := SiblingPath(tsPath, ext)

	f, err := os.Create(thumbPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	log.Debug("wrote thumbnail", slog.String("path", thumbPath))
	return nil
}
