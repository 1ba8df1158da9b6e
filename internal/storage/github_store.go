package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubConfig addresses one repository branch.
type GitHubConfig struct {
	Owner   string
	Repo    string
	Branch  string
	Token   string
	BaseURL string
	Timeout time.Duration
}

// GitHubStore keeps blobs as files in a GitHub repository through the REST
// contents API. The version tag is the git blob sha.
type GitHubStore struct {
	cfg    GitHubConfig
	client *http.Client
}

type contentItem struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Sha      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	Sha     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		Sha string `json:"sha"`
	} `json:"content"`
}

// NewGitHubStore validates cfg and fills defaults.
func NewGitHubStore(cfg GitHubConfig) (*GitHubStore, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, apperrors.NewValidationError("github", "owner and repo are required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGitHubAPI
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GitHubStore{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (s *GitHubStore) contentsURL(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", s.cfg.BaseURL,
		url.PathEscape(s.cfg.Owner), url.PathEscape(s.cfg.Repo), strings.Join(segments, "/"))
	return u
}

func (s *GitHubStore) newRequest(ctx context.Context, method, p string, body io.Reader, accept string) (*http.Request, error) {
	u := s.contentsURL(p)
	if method == http.MethodGet {
		u += "?ref=" + url.QueryEscape(s.cfg.Branch)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build github request: %w", err)
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// fetch returns the decoded JSON body of a contents GET. A missing path
// yields a not_found error.
func (s *GitHubStore) fetch(ctx context.Context, p string) (json.RawMessage, error) {
	req, err := s.newRequest(ctx, http.MethodGet, p, nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github get %s: %w", p, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no blob at %s", p), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("github get %s failed(%d): %s", p, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// Get reads the file at p.
func (s *GitHubStore) Get(ctx context.Context, p string) ([]byte, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, clean)
	if err != nil {
		return nil, err
	}

	var item contentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, apperrors.NewValidationError("path", fmt.Sprintf("%s is not a file", clean), err)
	}
	if item.Type != "" && item.Type != "file" {
		return nil, apperrors.NewValidationError("path", fmt.Sprintf("%s is a %s, not a file", clean, item.Type), nil)
	}
	if item.Encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(item.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode github content %s: %w", clean, err)
		}
		return data, nil
	}
	// Files over 1 MB come back without inline content.
	return s.getRaw(ctx, clean)
}

func (s *GitHubStore) getRaw(ctx context.Context, p string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, p, nil, "application/vnd.github.raw")
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github raw get %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no blob at %s", p), nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github raw get %s failed(%d): %s", p, resp.StatusCode, truncate(string(body), 200))
	}
	return io.ReadAll(resp.Body)
}

// currentSha returns the sha of the file at p, or "" if it does not exist.
func (s *GitHubStore) currentSha(ctx context.Context, p string) (string, error) {
	raw, err := s.fetch(ctx, p)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return "", nil
		}
		return "", err
	}
	var item contentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return "", apperrors.NewConflictError(fmt.Sprintf("%s exists and is not a file", p), err)
	}
	return item.Sha, nil
}

// Put creates or replaces the file at p. The current sha is read first and
// sent along; a concurrent writer in between makes GitHub reject the write,
// which surfaces as a remote write failure carrying the status.
func (s *GitHubStore) Put(ctx context.Context, p string, data []byte, message string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", apperrors.NewValidationError("path", "empty blob path", nil)
	}

	sha, err := s.currentSha(ctx, clean)
	if err != nil {
		return "", apperrors.NewRemoteWriteError(clean, 0, err)
	}
	if message == "" {
		message = "Update " + clean
	}
	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.cfg.Branch,
		Sha:     sha,
	})
	if err != nil {
		return "", fmt.Errorf("encode github put: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPut, clean, bytes.NewReader(payload), "")
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperrors.NewRemoteWriteError(clean, 0, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		utils.GetLogger().Warn("github write rejected", map[string]interface{}{
			"path":   clean,
			"status": resp.StatusCode,
		})
		return "", apperrors.NewRemoteWriteError(clean, resp.StatusCode, fmt.Errorf("%s", truncate(string(body), 200)))
	}

	var out putResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode github put response: %w", err)
	}
	return out.Content.Sha, nil
}

// List returns the children of the directory at p.
func (s *GitHubStore) List(ctx context.Context, p string) ([]Entry, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, clean)
	if err != nil {
		return nil, err
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperrors.NewValidationError("path", fmt.Sprintf("%s is not a directory", clean), err)
	}
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		kind := EntryFile
		if it.Type == "dir" {
			kind = EntryDir
		}
		entries = append(entries, Entry{Name: it.Name, Path: it.Path, Kind: kind})
	}
	sortEntries(entries)
	return entries, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
