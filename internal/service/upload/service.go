package upload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/model"
)

// PublicPrefix is the URL path the upload directory is served under.
const PublicPrefix = "/uploads/"

const profileImageDir = "profile_images"

// Service stores user uploads on local disk.
type Service struct {
	dir      string
	baseURL  string
	maxBytes int64
	now      func() time.Time
}

// NewService stores files under cfg.Dir and builds URLs from publicBaseURL.
func NewService(cfg config.UploadConfig, publicBaseURL string) *Service {
	return &Service{
		dir:      cfg.Dir,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		maxBytes: cfg.MaxBytes,
		now:      time.Now,
	}
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// FileServer serves stored uploads; mount it under PublicPrefix.
func (s *Service) FileServer() http.Handler {
	return http.StripPrefix(strings.TrimSuffix(PublicPrefix, "/"), http.FileServer(http.Dir(s.dir)))
}

// SaveProfileImage validates and stores an avatar, returning its public URL.
func (s *Service) SaveProfileImage(uid, filename string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return "", model.Invalid("No image provided")
	}
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return "", model.Invalid("File must be an image")
	}

	name := fmt.Sprintf("%d_%s", s.now().Unix(), sanitize(filename, "image"))
	rel := path.Join(profileImageDir, sanitize(uid, "user"), name)
	dst := filepath.Join(s.dir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	written, copyErr := io.Copy(f, io.LimitReader(br, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && written > s.maxBytes {
		copyErr = model.Invalid("Image must be %s or smaller", sizeLabel(s.maxBytes))
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dst)
		return "", copyErr
	}

	log.Info().Str("user_id", uid).Str("file", rel).Int64("bytes", written).Msg("profile image stored")
	return s.baseURL + PublicPrefix + rel, nil
}

// RemoveProfileImage deletes an avatar previously returned by SaveProfileImage.
// URLs outside the profile image directory are rejected; a missing file is not an error.
func (s *Service) RemoveProfileImage(imageURL string) error {
	rel, ok := strings.CutPrefix(imageURL, s.baseURL+PublicPrefix)
	if !ok || !strings.HasPrefix(rel, profileImageDir+"/") || path.Clean(rel) != rel {
		return model.Invalid("Not a stored profile image")
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	log.Info().Str("file", rel).Msg("profile image removed")
	return nil
}

// sanitize keeps a single path element made of safe characters.
func sanitize(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return fallback
	}
	return out
}

func sizeLabel(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
