// Package upload stores message attachments on local disk under their
// content hash.
package upload

import (
	"bufio"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

const DefaultMaxBytes = 25 << 20

var (
	ErrTooLarge    = errors.Wrap(models.ErrUpload, "file too large")
	ErrUnsupported = errors.Wrap(models.ErrUpload, "file type not allowed")

	keyPattern = regexp.MustCompile(`^[0-9a-f]{64}(\.[a-z0-9]{1,10})?$`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

type Config struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"maxBytes"`
	// AllowedTypes are MIME type prefixes, e.g. "image/". Empty allows all.
	AllowedTypes []string `yaml:"allowedTypes"`
	// URLPrefix is prepended to the key to form the public URL.
	URLPrefix string `yaml:"urlPrefix"`
}

type Store struct {
	cfg Config
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/uploads/"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload directory %s", cfg.Dir)
	}
	return &Store{cfg: cfg}, nil
}

func (s *Store) MaxBytes() int64 {
	return s.cfg.MaxBytes
}

func (s *Store) allowed(contentType string) bool {
	if len(s.cfg.AllowedTypes) == 0 {
		return true
	}
	for _, prefix := range s.cfg.AllowedTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Save streams r to disk. The file only becomes visible under its final key
// once it has been read completely; on any failure or cancellation nothing is
// left behind.
func (s *Store) Save(ctx context.Context, name, contentType string, r io.Reader) (*models.Attachment, error) {
	br := bufio.NewReader(r)
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := br.Peek(512)
		contentType = http.DetectContentType(head)
	}
	if !s.allowed(contentType) {
		return nil, errors.Wrapf(ErrUnsupported, "%s", contentType)
	}

	tmp, err := os.CreateTemp(s.cfg.Dir, ".upload-*")
	if err != nil {
		return nil, errors.Wrap(models.ErrUpload, err.Error())
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hash, _ := blake2b.New256(nil)
	limited := io.LimitReader(ctxReader{ctx: ctx, r: br}, s.cfg.MaxBytes+1)
	n, err := io.Copy(io.MultiWriter(tmp, hash), limited)
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case ctx.Err() != nil:
			return nil, errors.Wrap(models.ErrUpload, "upload cancelled")
		case errors.As(err, &tooBig):
			return nil, errors.Wrapf(ErrTooLarge, "limit is %d bytes", s.cfg.MaxBytes)
		}
		return nil, errors.Wrap(models.ErrUpload, err.Error())
	}
	if n > s.cfg.MaxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "limit is %d bytes", s.cfg.MaxBytes)
	}
	if n == 0 {
		return nil, errors.Wrap(models.ErrUpload, "file is empty")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(models.ErrUpload, err.Error())
	}

	key := hex.EncodeToString(hash.Sum(nil)) + extension(name)
	if err := os.Rename(tmp.Name(), filepath.Join(s.cfg.Dir, key)); err != nil {
		return nil, errors.Wrap(models.ErrUpload, err.Error())
	}
	committed = true
	log.WithFields(log.Fields{"key": key, "size": n, "type": contentType}).Debug("stored upload")

	return &models.Attachment{
		URL:    s.cfg.URLPrefix + key,
		Name:   filepath.Base(name),
		Size:   n,
		Type:   contentType,
		Status: "complete",
	}, nil
}

func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// Open returns the stored file for key.
func (s *Store) Open(key string) (*os.File, error) {
	if !keyPattern.MatchString(key) {
		return nil, models.NotFoundf("upload %s", key)
	}
	f, err := os.Open(filepath.Join(s.cfg.Dir, key))
	if os.IsNotExist(err) {
		return nil, models.NotFoundf("upload %s", key)
	}
	return f, err
}
