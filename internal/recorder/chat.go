package recorder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fc2dl/fc2dl/internal/fc2"
)

// writeChat drains the comment stream into an NDJSON file, one chat message
// per line in arrival order. Runs until the channel closes with the control
// connection.
func writeChat(path string, comments <-chan *fc2.Comment, logger *slog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chat file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	count := 0
	for comment := range comments {
		if err := enc.Encode(comment); err != nil {
			return fmt.Errorf("writing chat message: %w", err)
		}
		count++
	}
	logger.Debug("chat capture finished", slog.Int("messages", count))
	return nil
}
