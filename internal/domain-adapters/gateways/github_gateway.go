package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// GitHubAPIURL is the public GitHub REST endpoint
const GitHubAPIURL = "https://api.github.com"

// HTTPGitHubGateway implements GitHubGateway using standard HTTP client
type HTTPGitHubGateway struct {
	client    *http.Client
	apiURL    string
	token     string
	userAgent string
	logger    interfaces.Logger
}

// NewHTTPGitHubGateway creates a new GitHub gateway. An empty apiURL
// selects the public API.
func NewHTTPGitHubGateway(token, apiURL string, logger interfaces.Logger) *HTTPGitHubGateway {
	if apiURL == "" {
		apiURL = GitHubAPIURL
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &HTTPGitHubGateway{
		client: &http.Client{
			Timeout: 5 * time.Minute, // large binaries
		},
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		token:     token,
		userAgent: "distill/1.0",
		logger:    logger,
	}
}

// checkRateLimit returns an error once the API rate limit is exhausted
func (g *HTTPGitHubGateway) checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}

	remainingInt, err := strconv.Atoi(remaining)
	if err != nil {
		return nil
	}

	if remainingInt == 0 {
		if resetUnix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			resetAt := time.Unix(resetUnix, 0)
			return fmt.Errorf("GitHub API rate limit exceeded (0 remaining), resets at %s", resetAt.Format(time.RFC3339))
		}
		return fmt.Errorf("GitHub API rate limit exceeded (0 remaining)")
	}

	if remainingInt <= 10 {
		g.logger.Warn("GitHub API rate limit low", interfaces.F("remaining", remainingInt))
	}
	return nil
}

func (g *HTTPGitHubGateway) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "token "+g.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", g.userAgent)
	return req, nil
}

// do sends a request once. Publishing never retries.
func (g *HTTPGitHubGateway) do(req *http.Request) (*http.Response, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := g.checkRateLimit(resp); err != nil {
		//nolint:errcheck,gosec // G104: Best effort close on rate limit error
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// statusError reads the response body into an error message
func statusError(action string, resp *http.Response) error {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to %s: status %d (failed to read response)", action, resp.StatusCode)
	}
	return fmt.Errorf("failed to %s: status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

// githubRelease represents the GitHub API release format
type githubRelease struct {
	ID              int64  `json:"id,omitempty"`
	TagName         string `json:"tag_name"`
	TargetCommitish string `json:"target_commitish,omitempty"`
	Name            string `json:"name"`
	Body            string `json:"body"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
	CreatedAt       string `json:"created_at,omitempty"`
	PublishedAt     string `json:"published_at,omitempty"`
	HTMLURL         string `json:"html_url,omitempty"`
	UploadURL       string `json:"upload_url,omitempty"`
}

func (r githubRelease) toRelease() *gateways.GitHubRelease {
	return &gateways.GitHubRelease{
		ID:              r.ID,
		TagName:         r.TagName,
		TargetCommitish: r.TargetCommitish,
		Name:            r.Name,
		Body:            r.Body,
		Draft:           r.Draft,
		Prerelease:      r.Prerelease,
		CreatedAt:       r.CreatedAt,
		PublishedAt:     r.PublishedAt,
		HTMLURL:         r.HTMLURL,
		UploadURL:       r.UploadURL,
	}
}

// githubAsset represents a GitHub release asset
type githubAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Label              string `json:"label"`
	State              string `json:"state"`
	Size               int64  `json:"size"`
	DownloadCount      int    `json:"download_count"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (a githubAsset) toAsset() *gateways.GitHubAsset {
	return &gateways.GitHubAsset{
		ID:                 a.ID,
		Name:               a.Name,
		Label:              a.Label,
		State:              a.State,
		Size:               a.Size,
		DownloadCount:      a.DownloadCount,
		BrowserDownloadURL: a.BrowserDownloadURL,
	}
}

// CreateRelease creates a new GitHub release
func (g *HTTPGitHubGateway) CreateRelease(ctx context.Context, owner, repo string, release *gateways.GitHubRelease) (*gateways.GitHubRelease, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", g.apiURL, owner, repo)

	body, err := json.Marshal(githubRelease{
		TagName:         release.TagName,
		TargetCommitish: release.TargetCommitish,
		Name:            release.Name,
		Body:            release.Body,
		Draft:           release.Draft,
		Prerelease:      release.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal release: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create release: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("create release", resp)
	}

	var result githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.toRelease(), nil
}

// GetRelease retrieves a release by tag name
func (g *HTTPGitHubGateway) GetRelease(ctx context.Context, owner, repo, tag string) (*gateways.GitHubRelease, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", g.apiURL, owner, repo, url.PathEscape(tag))

	req, err := g.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", gateways.ErrReleaseNotFound, tag)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get release", resp)
	}

	var result githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.toRelease(), nil
}

// UploadAsset uploads a file to a release
func (g *HTTPGitHubGateway) UploadAsset(ctx context.Context, uploadURL, filename string, content io.Reader) (*gateways.GitHubAsset, error) {
	// GitHub returns upload URLs with a template suffix: .../assets{?name,label}
	baseURL := strings.Split(uploadURL, "{")[0]
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid upload URL: %w", err)
	}
	if strings.Contains(baseURL, "api.github.com") {
		baseURL = strings.Replace(baseURL, "api.github.com", "uploads.github.com", 1)
	}
	uploadURLWithName := fmt.Sprintf("%s?name=%s", baseURL, url.QueryEscape(filename))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, uploadURLWithName, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(buf.Len())

	resp, err := g.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload asset: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("upload asset "+filename, resp)
	}

	var result githubAsset
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.toAsset(), nil
}

// ListReleaseAssets lists all assets for a release
func (g *HTTPGitHubGateway) ListReleaseAssets(ctx context.Context, owner, repo string, releaseID int64) ([]*gateways.GitHubAsset, error) {
	var assets []*gateways.GitHubAsset
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?per_page=100&page=%d", g.apiURL, owner, repo, releaseID, page)

		req, err := g.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		results, err := g.listAssetsPage(req)
		if err != nil {
			return nil, err
		}
		for _, a := range results {
			assets = append(assets, a.toAsset())
		}
		if len(results) < 100 {
			return assets, nil
		}
	}
}

func (g *HTTPGitHubGateway) listAssetsPage(req *http.Request) ([]githubAsset, error) {
	resp, err := g.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list assets", resp)
	}

	var results []githubAsset
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return results, nil
}

// DownloadAsset streams the raw content of a release asset. The caller
// closes the returned reader.
func (g *HTTPGitHubGateway) DownloadAsset(ctx context.Context, owner, repo string, assetID int64) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", g.apiURL, owner, repo, assetID)

	req, err := g.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := g.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download asset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		//nolint:errcheck // Defer close on HTTP response body
		defer resp.Body.Close()
		return nil, statusError(fmt.Sprintf("download asset %d", assetID), resp)
	}
	return resp.Body, nil
}

// DeleteAsset removes a release asset
func (g *HTTPGitHubGateway) DeleteAsset(ctx context.Context, owner, repo string, assetID int64) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", g.apiURL, owner, repo, assetID)

	req, err := g.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := g.do(req)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError(fmt.Sprintf("delete asset %d", assetID), resp)
	}
}
