// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxImageBytes caps the size of a fetched image.
const MaxImageBytes = 50 * 1024 * 1024

// MaxImagesPerAnswer caps how many images one answer forwards.
const MaxImagesPerAnswer = 3

var imageURLRe = regexp.MustCompile(`https?://[^\s<>()"']+`)

// imageExtensions mark URLs worth attempting a fetch for even before the
// Content-Type check.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// ExtractImageURLs returns the deduplicated image-looking URLs in text, in
// order of first appearance.
func ExtractImageURLs(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range imageURLRe.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:!?")
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if !imageExtensions[strings.ToLower(path.Ext(u.Path))] {
			continue
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	return out
}

// Image is a fetched and validated image.
type Image struct {
	URL         string
	Filename    string
	ContentType string
	Data        []byte
}

// FetcherConfig configures an ImageFetcher.
type FetcherConfig struct {
	// AllowedHosts is the hostname allow-list. Empty means nothing is
	// fetched.
	AllowedHosts []string
	MaxBytes     int64
	Timeout      time.Duration
	Logger       *zap.Logger
}

// ImageFetcher downloads images from allow-listed https hosts. Redirects are
// not followed; a redirecting host could otherwise escape the allow-list.
type ImageFetcher struct {
	allowed  map[string]bool
	maxBytes int64
	client   *http.Client
	logger   *zap.Logger
}

// NewImageFetcher creates a fetcher.
func NewImageFetcher(cfg FetcherConfig) *ImageFetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = MaxImageBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	return &ImageFetcher{
		allowed:  allowed,
		maxBytes: cfg.MaxBytes,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: cfg.Logger,
	}
}

// Allowed reports whether the URL passes the scheme and host checks.
func (f *ImageFetcher) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && f.allowed[strings.ToLower(u.Hostname())]
}

// Fetch downloads one image. The URL must be https on an allow-listed host,
// the response must not redirect, the Content-Type must be image/*, and the
// body must fit the size cap.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if !f.Allowed(rawURL) {
		return nil, fmt.Errorf("url %s is not on the image allow-list", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("image url %s redirects (%d), refusing to follow", rawURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("url %s is not an image (content type %q)", rawURL, contentType)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", f.maxBytes)
	}

	u, _ := url.Parse(rawURL)
	filename := path.Base(u.Path)
	if filename == "." || filename == "/" || filename == "" {
		filename = "image"
	}
	return &Image{URL: rawURL, Filename: filename, ContentType: contentType, Data: data}, nil
}
