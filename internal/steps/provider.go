package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v5"
)

// Provider supplies training metadata.
type Provider interface {
	Fetch(ctx context.Context) (*Metadata, error)
	Name() string
}

var ErrNoMetadataFile = errors.New("no metadata file found")

// FileProvider reads metadata from the first existing path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
type FileProvider struct {
	Paths []string
}

// NewFileProvider searches dir for <project>-metadata.json then metadata.json.
// An explicit path, when given, is tried first.
func NewFileProvider(explicit, dir, project string) *FileProvider {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if project != "" {
		paths = append(paths, filepath.Join(dir, project+"-metadata.json"))
	}
	paths = append(paths,
		filepath.Join(dir, "metadata.json"),
		filepath.Join(dir, "metadata.yaml"),
	)
	return &FileProvider{Paths: paths}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Fetch(ctx context.Context) (*Metadata, error) {
	for _, path := range p.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var md *Metadata
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			md, err = ParseYAML(b)
		default:
			md, err = ParseJSON(b)
		}
		if err != nil {
			// A broken file stays broken; retrying is pointless.
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", path, err))
		}
		return md, nil
	}
	return nil, backoff.Permanent(ErrNoMetadataFile)
}

// HTTPProvider fetches metadata from the training platform.
type HTTPProvider struct {
	BaseURL     string
	BuildName   string
	BuildType   string
	ContainerID string
	Token       string
	Client      *http.Client
}

func (p *HTTPProvider) Name() string { return "http" }

// URL returns the request URL with the build query parameters.
func (p *HTTPProvider) URL() (string, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid metadata url: %w", err)
	}
	q := u.Query()
	if p.BuildName != "" {
		q.Set("buildName", p.BuildName)
	}
	if p.BuildType != "" {
		q.Set("buildType", p.BuildType)
	}
	if p.ContainerID != "" {
		q.Set("containerId", p.ContainerID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *HTTPProvider) Fetch(ctx context.Context) (*Metadata, error) {
	target, err := p.URL()
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Sentient-Trainer")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read metadata response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("metadata request returned %d", resp.StatusCode)
		if !Retryable(resp.StatusCode) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	md, err := ParseJSON(body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return md, nil
}

// Retryable reports whether an HTTP status may succeed on a later attempt.
func Retryable(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
