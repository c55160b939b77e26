// Package recorder orchestrates one recording session: metadata, control
// channel, HLS download, chat capture, and post-processing.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TemplateVars are the values available to the output filename template.
type TemplateVars struct {
	ChannelID   string
	ChannelName string
	Date        time.Time
	Title       string
	Ext         string
}

var templateKeyRe = regexp.MustCompile(`%\(([A-Za-z0-9_]+)\)s`)

// FormatOutput renders a %(key)s template into a file path. Unknown keys
// are an error so typos fail before a multi-hour recording starts.
func FormatOutput(template string, vars TemplateVars) (string, error) {
	values := map[string]string{
		"channel_id":   vars.ChannelID,
		"channel_name": vars.ChannelName,
		"date":         vars.Date.Format("2006-01-02"),
		"time":         vars.Date.Format("150405"),
		"title":        vars.Title,
		"ext":          vars.Ext,
	}

	var badKey string
	out := templateKeyRe.ReplaceAllStringFunc(template, func(m string) string {
		key := templateKeyRe.FindStringSubmatch(m)[1]
		v, ok := values[key]
		if !ok {
			badKey = key
			return m
		}
		return sanitizeFilename(v)
	})
	if badKey != "" {
		return "", fmt.Errorf("unknown output template key %q", badKey)
	}
	return out, nil
}

var unsafeFilenameChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// sanitizeFilename neutralizes path separators and shell-hostile characters
// in template values. A leading dash gets an underscore so the resulting
// name cannot be mistaken for a command flag.
func sanitizeFilename(s string) string {
	s = unsafeFilenameChars.Replace(s)
	if strings.HasPrefix(s, "-") {
		s = "_" + s
	}
	return s
}

// PrepareFile creates the parent directories for path and returns a
// variant that does not collide with an existing file, appending .1, .2,
// and so on before the extension until a free name is found.
func PrepareFile(path string) (string, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s.%d%s", base, n, ext)
	}
}

// SiblingPath swaps the extension of path, e.g. for the info JSON and
// thumbnail files written next to the recording.
func SiblingPath(path, newExt string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + newExt
}
