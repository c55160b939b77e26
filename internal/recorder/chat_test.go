package recorder

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc2dl/fc2dl/internal/fc2"
)

func TestWriteChat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.fc2chat.json")

	comments := make(chan *fc2.Comment, 3)
	comments <- &fc2.Comment{UserName: "alice", Comment: "hello", Timestamp: 100}
	comments <- &fc2.Comment{UserName: "bob", Comment: "hi", Timestamp: 101}
	close(comments)

	err := writeChat(path, comments, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []fc2.Comment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var c fc2.Comment
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &c))
		got = append(got, c)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].UserName)
	assert.Equal(t, int64(101), got[1].Timestamp)
}
