package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() TemplateVars {
	return TemplateVars{
		ChannelID:   "12345",
		ChannelName: "tester",
		Date:        time.Date(2024, 3, 15, 21, 4, 5, 0, time.UTC),
		Title:       "my broadcast",
		Ext:         "ts",
	}
}

func TestFormatOutput(t *testing.T) {
	tests := []struct {
		name     string
		template string
		mutate   func(*TemplateVars)
		want     string
		wantErr  bool
	}{
		{
			name:     "default template",
			template: "%(date)s %(title)s (%(channel_name)s).%(ext)s",
			want:     "2024-03-15 my broadcast (tester).ts",
		},
		{
			name:     "all keys",
			template: "%(channel_id)s-%(channel_name)s-%(date)s-%(time)s-%(title)s.%(ext)s",
			want:     "12345-tester-2024-03-15-210405-my broadcast.ts",
		},
		{
			name:     "unsafe characters sanitized",
			template: "%(title)s.%(ext)s",
			mutate:   func(v *TemplateVars) { v.Title = `a/b\c:d*e?f"g<h>i|j` },
			want:     "a_b_c_d_e_f_g_h_i_j.ts",
		},
		{
			name:     "leading dash neutralized",
			template: "%(title)s.%(ext)s",
			mutate:   func(v *TemplateVars) { v.Title = "-rf important" },
			want:     "_-rf important.ts",
		},
		{
			name:     "unknown key",
			template: "%(nope)s.%(ext)s",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := testVars()
			if tt.mutate != nil {
				tt.mutate(&vars)
			}
			got, err := FormatOutput(tt.template, vars)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("creates parent directories", func(t *testing.T) {
		path, err := PrepareFile(filepath.Join(dir, "a", "b", "out.ts"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "a", "b", "out.ts"), path)
		assert.DirExists(t, filepath.Join(dir, "a", "b"))
	})

	t.Run("avoids collisions with numbered suffix", func(t *testing.T) {
		base := filepath.Join(dir, "rec.ts")
		require.NoError(t, os.WriteFile(base, []byte("x"), 0o644))

		path, err := PrepareFile(base)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "rec.1.ts"), path)

		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		path, err = PrepareFile(base)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "rec.2.ts"), path)
	})
}

func TestSiblingPath(t *testing.T) {
	assert.Equal(t, "/tmp/rec.info.json", SiblingPath("/tmp/rec.ts", ".info.json"))
	assert.Equal(t, "/tmp/rec.fc2chat.json", SiblingPath("/tmp/rec.ts", ".fc2chat.json"))
	assert.Equal(t, "/tmp/rec.jpg", SiblingPath("/tmp/rec.ts", ".jpg"))
}
