// Package source provides pluggable strategies for discovering the
// files a dispatch.Pool should hand out, mirroring the
// local/HTTP/channel strategy split the teacher used for task sources.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
)

// Source discovers the files available for a training run.
type Source interface {
	// List returns the file paths or URIs currently available.
	List(ctx context.Context) ([]string, error)
}

// LocalGlob lists files matching a filepath.Glob pattern, e.g.
// "./data/part-*".
type LocalGlob struct {
	Pattern string
}

// List implements Source.
func (g LocalGlob) List(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(g.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", g.Pattern, err)
	}
	return matches, nil
}

// HTTP lists files by fetching a JSON array of paths from a manifest
// URL, for shard lists served by an external orchestrator.
type HTTP struct {
	ManifestURL string
	Client      *http.Client
}

// List implements Source.
func (h HTTP) List(ctx context.Context) ([]string, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.ManifestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest request failed: %s", resp.Status)
	}

	var files []string
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return files, nil
}

// Channel lists whatever has been pushed to an in-process channel, for
// a Kafka-style push feed without requiring a real broker dependency.
// Close the channel to signal there are no more files.
type Channel struct {
	Files <-chan string
}

// List implements Source. It drains the channel until it is closed or
// the context is cancelled.
func (c Channel) List(ctx context.Context) ([]string, error) {
	var files []string
	for {
		select {
		case f, ok := <-c.Files:
			if !ok {
				return files, nil
			}
			files = append(files, f)
		case <-ctx.Done():
			return files, ctx.Err()
		}
	}
}

// LineFile lists files named one-per-line in a text manifest read
// through r, the format the original pool matched with a regex over a
// directory listing.
func LineFile(r *bufio.Scanner) ([]string, error) {
	var files []string
	for r.Scan() {
		line := r.Text()
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files, r.Err()
}
