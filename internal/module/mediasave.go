package module

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aheby/roombot/internal/conf"
	"github.com/aheby/roombot/matrix"
)

var linkPattern = regexp.MustCompile(`(?i)https?://\S+`)

// savedExtensions are the media types the archiver keeps.
var savedExtensions = []string{"jpg", "png", "bmp", "gif", "jpeg", "webm", "pdf"}

// MediaSave archives media linked in messages from configured hosts.
// It runs on every message regardless of earlier claims and never
// claims a message itself: archiving is a side effect, not a command.
type MediaSave struct {
	gateway    Gateway
	httpClient *http.Client
	saveDir    string
	publicURL  string
	hosts      []string
	alwaysRun  bool
	logger     *slog.Logger
}

// NewMediaSave builds the archiver. Fails when no save directory is
// configured or the directory cannot be written, which disables the
// module.
func NewMediaSave(cfg conf.MediaSaveConfig, gateway Gateway, logger *slog.Logger) (*MediaSave, error) {
	if cfg.SaveDir == "" {
		return nil, fmt.Errorf("module: no save directory configured, mediasave disabled")
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return nil, fmt.Errorf("module: save directory unusable: %w", err)
	}
	probe := filepath.Join(cfg.SaveDir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, fmt.Errorf("module: no write access to save directory: %w", err)
	}
	os.Remove(probe)

	publicURL := cfg.PublicURL
	if publicURL != "" && !strings.HasSuffix(publicURL, "/") {
		publicURL += "/"
	}

	return &MediaSave{
		gateway:    gateway,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		saveDir:    cfg.SaveDir,
		publicURL:  publicURL,
		hosts:      cfg.Hosts,
		alwaysRun:  cfg.AlwaysRun,
		logger:     logger,
	}, nil
}

func (m *MediaSave) Name() string { return "mediasave" }

func (m *MediaSave) AlwaysRun() bool { return m.alwaysRun }

// Run archives any matching links and always reports the message as
// unclaimed so command modules still see it.
func (m *MediaSave) Run(ctx context.Context, room *matrix.Room, event matrix.Event, message string) (bool, error) {
	for _, link := range linkPattern.FindAllString(message, -1) {
		if !m.matchesHost(link) {
			continue
		}
		extension := fileExtension(link)
		if extension == "" {
			continue
		}
		filename := hashedName(link, extension)
		path := filepath.Join(m.saveDir, filename)
		if _, err := os.Stat(path); err == nil {
			m.logger.Debug("media already saved", "link", link, "path", path)
			continue
		}
		if err := m.download(ctx, link, path); err != nil {
			m.logger.Warn("could not save media", "link", link, "error", err)
			continue
		}
		m.logger.Info("saved media", "link", link, "path", path)
		if m.publicURL != "" {
			if err := m.gateway.SendText(ctx, room.ID, "File saved to "+m.publicURL+filename+" ."); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (m *MediaSave) matchesHost(link string) bool {
	lower := strings.ToLower(link)
	for _, host := range m.hosts {
		if strings.Contains(lower, strings.ToLower(host)) {
			return true
		}
	}
	return false
}

func (m *MediaSave) download(ctx context.Context, link, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

func fileExtension(link string) string {
	lower := strings.ToLower(link)
	for _, extension := range savedExtensions {
		if strings.HasSuffix(lower, "."+extension) {
			return extension
		}
	}
	return ""
}

func hashedName(link, extension string) string {
	sum := sha1.Sum([]byte(link))
	return hex.EncodeToString(sum[:]) + "." + extension
}
