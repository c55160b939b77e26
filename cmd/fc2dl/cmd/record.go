package cmd

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fc2dl/fc2dl/internal/config"
	"github.com/fc2dl/fc2dl/internal/fc2"
	"github.com/fc2dl/fc2dl/internal/observability"
	"github.com/fc2dl/fc2dl/internal/recorder"
)

// recordCmd records one live broadcast to disk.
var recordCmd = &cobra.Command{
	Use:   "record <url>",
	Short: "Record a live broadcast",
	Long: `Record a live FC2 broadcast to disk.

The URL must be a https://live.fc2.com/<channel_id>/ channel page. The raw
stream is captured to a .ts file and remuxed to MP4 when the broadcast
ends. Press Ctrl-C once to stop recording and finalize the output; a
second Ctrl-C aborts immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.String("quality", "", "stream quality ("+strings.Join(config.ValidQualities, ", ")+")")
	f.String("latency", "", "stream latency ("+strings.Join(config.ValidLatencies, ", ")+")")
	f.Int("threads", 0, "number of parallel fragment downloads")
	f.StringP("output", "o", "", "output filename template, e.g. '%(date)s %(title)s.%(ext)s'")
	f.String("cookies", "", "path to a Netscape-format cookies file")
	f.Bool("write-chat", false, "save live chat as NDJSON next to the recording")
	f.Bool("write-info-json", false, "save the channel metadata JSON next to the recording")
	f.Bool("write-thumbnail", false, "save the channel thumbnail next to the recording")
	f.Bool("wait", false, "wait for the channel to go live instead of failing")
	f.Duration("poll-interval", 0, "how often to poll while waiting for the broadcast")
	f.Bool("no-remux", false, "keep the raw .ts capture instead of remuxing to MP4")
	f.BoolP("keep-intermediates", "k", false, "keep the raw .ts capture after remuxing")
	f.BoolP("extract-audio", "x", false, "also produce an audio-only M4A alongside the MP4")
	f.Bool("dump-websocket", false, "dump control channel frames to a file for debugging")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyRecordFlags(cmd.Flags(), rootCmd.PersistentFlags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	channelID, err := fc2.ParseChannelURL(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// After the first signal, restore default handling so a second
		// one terminates the process instead of waiting for the remux.
		<-ctx.Done()
		stop()
	}()

	rec, err := recorder.New(cfg, channelID, logger)
	if err != nil {
		return err
	}
	if err := rec.Run(ctx); err != nil {
		if errors.Is(err, fc2.ErrNotOnline) {
			logger.Error("channel is not broadcasting; use --wait to wait for it")
		}
		return err
	}
	return nil
}

// applyRecordFlags overrides loaded config with flags the user set
// explicitly.
func applyRecordFlags(f, pf *pflag.FlagSet, cfg *config.Config) {
	if pf.Changed("log-level") {
		cfg.Logging.Level, _ = pf.GetString("log-level")
	}
	if pf.Changed("log-format") {
		cfg.Logging.Format, _ = pf.GetString("log-format")
	}

	if f.Changed("quality") {
		cfg.Recording.Quality, _ = f.GetString("quality")
	}
	if f.Changed("latency") {
		cfg.Recording.Latency, _ = f.GetString("latency")
	}
	if f.Changed("threads") {
		cfg.Recording.Threads, _ = f.GetInt("threads")
	}
	if f.Changed("output") {
		cfg.Recording.OutputTemplate, _ = f.GetString("output")
	}
	if f.Changed("cookies") {
		cfg.Recording.CookiesFile, _ = f.GetString("cookies")
	}
	if f.Changed("write-chat") {
		cfg.Recording.WriteChat, _ = f.GetBool("write-chat")
	}
	if f.Changed("write-info-json") {
		cfg.Recording.WriteInfoJSON, _ = f.GetBool("write-info-json")
	}
	if f.Changed("write-thumbnail") {
		cfg.Recording.WriteThumbnail, _ = f.GetBool("write-thumbnail")
	}
	if f.Changed("wait") {
		cfg.Recording.WaitForLive, _ = f.GetBool("wait")
	}
	if f.Changed("poll-interval") {
		var d time.Duration
		d, _ = f.GetDuration("poll-interval")
		cfg.Recording.WaitPollInterval = d
	}
	if f.Changed("no-remux") {
		noRemux, _ := f.GetBool("no-remux")
		cfg.Recording.Remux = !noRemux
	}
	if f.Changed("keep-intermediates") {
		cfg.Recording.KeepIntermediates, _ = f.GetBool("keep-intermediates")
	}
	if f.Changed("extract-audio") {
		cfg.Recording.ExtractAudio, _ = f.GetBool("extract-audio")
	}
	if f.Changed("dump-websocket") {
		cfg.Recording.DumpWebsocket, _ = f.GetBool("dump-websocket")
	}
}
