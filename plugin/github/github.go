// Package github publishes exported markdown to a repository through the
// contents API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const defaultAPIBase = "https://api.github.com"

// Exporter pushes files to one repository branch.
type Exporter struct {
	owner   string
	repo    string
	branch  string
	apiBase string
	client  *http.Client
}

// NewExporter builds the exporter; any missing credential leaves it not
// ready, and SaveNote refuses to run.
func NewExporter(token, owner, repo, branch string) *Exporter {
	e := &Exporter{
		owner:   owner,
		repo:    repo,
		branch:  branch,
		apiBase: defaultAPIBase,
	}
	if e.branch == "" {
		e.branch = "main"
	}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		e.client = oauth2.NewClient(context.Background(), src)
		e.client.Timeout = 30 * time.Second
	}
	return e
}

// IsReady reports whether the exporter has a token and a target repository.
func (e *Exporter) IsReady() bool {
	return e != nil && e.client != nil && e.owner != "" && e.repo != ""
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type contentsResponse struct {
	Content struct {
		HTMLURL string `json:"html_url"`
		SHA     string `json:"sha"`
	} `json:"content"`
}

// SaveNote creates or updates path with content and returns the file URL.
func (e *Exporter) SaveNote(ctx context.Context, path, content string) (string, error) {
	if !e.IsReady() {
		return "", errors.New("github exporter not configured")
	}

	body := contentsRequest{
		Message: "Add " + path,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  e.branch,
	}
	// Updating an existing file needs its blob sha.
	if sha, err := e.fileSHA(ctx, path); err == nil && sha != "" {
		body.SHA = sha
		body.Message = "Update " + path
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal contents request")
	}
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", e.apiBase, e.owner, e.repo, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		return "", errors.Wrap(err, "failed to build contents request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to push %s", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "failed to read contents response")
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("github contents api returned %d: %s", resp.StatusCode, data)
	}

	var out contentsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", errors.Wrap(err, "failed to decode contents response")
	}
	return out.Content.HTMLURL, nil
}

// fileSHA looks up the current blob sha of path; empty when absent.
func (e *Exporter) fileSHA(ctx context.Context, path string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", e.apiBase, e.owner, e.repo, path, e.branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var out struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.SHA, nil
}
