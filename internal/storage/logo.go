package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/gerrot/api/internal/document"
)

const (
	uploadsPrefix = "/uploads/"
	maxLogoBytes  = 5 << 20
)

var errUnsupportedLogo = errors.New("storage: unsupported logo image type")

// LogoResolver loads logos referenced by upload paths ("/uploads/x.png") or
// absolute http(s) URLs.
type LogoResolver struct {
	uploadsDir string
	httpClient *http.Client
}

func NewLogoResolver(uploadsDir string, fetchTimeout time.Duration) *LogoResolver {
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &LogoResolver{
		uploadsDir: uploadsDir,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

func (l *LogoResolver) LoadLogo(ctx context.Context, ref string) (*document.Image, error) {
	ref = strings.TrimSpace(ref)

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err = l.fetch(ctx, ref)
	case strings.HasPrefix(ref, uploadsPrefix):
		data, err = l.readUpload(strings.TrimPrefix(ref, uploadsPrefix))
	default:
		return nil, fmt.Errorf("storage: unsupported logo reference %q", ref)
	}
	if err != nil {
		return nil, err
	}

	imageType, err := detectImageType(data)
	if err != nil {
		return nil, err
	}
	return &document.Image{Data: data, Type: imageType}, nil
}

func (l *LogoResolver) readUpload(rel string) ([]byte, error) {
	key, err := sanitizeKey(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.uploadsDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxLogoBytes))
}

func (l *LogoResolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage: fetch logo: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
}

// detectImageType maps sniffed content onto the image types the PDF writer
// can embed.
func detectImageType(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/png"):
		return "PNG", nil
	case mt.Is("image/jpeg"):
		return "JPG", nil
	case mt.Is("image/gif"):
		return "GIF", nil
	default:
		return "", fmt.Errorf("%w: %s", errUnsupportedLogo, mt.String())
	}
}
