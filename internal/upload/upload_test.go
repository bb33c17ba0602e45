package upload

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

func newStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	cfg.Dir = t.TempDir()
	s, err := NewStore(cfg)
	require.NoError(t, err)
	return s
}

func entries(t *testing.T, s *Store) []string {
	t.Helper()
	list, err := os.ReadDir(s.cfg.Dir)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveAndOpen(t *testing.T) {
	s := newStore(t, Config{AllowedTypes: []string{"text/"}})

	att, err := s.Save(context.Background(), "notes.TXT", "text/plain", strings.NewReader("tomatoes"))
	require.NoError(t, err)
	assert.Equal(t, "notes.TXT", att.Name)
	assert.Equal(t, int64(8), att.Size)
	assert.True(t, strings.HasPrefix(att.URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(att.URL, ".txt"))

	key := strings.TrimPrefix(att.URL, "/uploads/")
	assert.Equal(t, []string{key}, entries(t, s))

	f, err := s.Open(key)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "tomatoes", string(body))

	again, err := s.Save(context.Background(), "copy.txt", "text/plain", strings.NewReader("tomatoes"))
	require.NoError(t, err)
	assert.Equal(t, att.URL, again.URL, "same content, same key")
}

func TestSaveSniffsType(t *testing.T) {
	s := newStore(t, Config{AllowedTypes: []string{"image/"}})
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	att, err := s.Save(context.Background(), "pic.png", "", bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.Type)
}

func TestSaveRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ctx  func() context.Context
		body string
		typ  string
		want error
	}{
		{
			name: "too large",
			cfg:  Config{MaxBytes: 4},
			body: "12345",
			typ:  "text/plain",
			want: ErrTooLarge,
		},
		{
			name: "type not allowed",
			cfg:  Config{AllowedTypes: []string{"image/"}},
			body: "hello",
			typ:  "text/plain",
			want: ErrUnsupported,
		},
		{
			name: "cancelled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			body: "hello",
			typ:  "text/plain",
			want: models.ErrUpload,
		},
		{
			name: "empty",
			typ:  "text/plain",
			want: models.ErrUpload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, tt.cfg)
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			_, err := s.Save(ctx, "f.txt", tt.typ, strings.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
			assert.Equal(t, models.KindUpload, models.Classify(err))
			assert.Empty(t, entries(t, s), "nothing left behind")
		})
	}
}

func TestOpenRejectsBadKeys(t *testing.T) {
	s := newStore(t, Config{})
	for _, key := range []string{"../etc/passwd", "abc", strings.Repeat("a", 64) + ".txt"} {
		_, err := s.Open(key)
		assert.Equal(t, models.KindNotFound, models.Classify(err), key)
	}
}
