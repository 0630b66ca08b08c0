// Package github provides a client for the GitHub REST API, used to proxy
// repository reads on behalf of share owners. Viewer requests never carry
// the owner's token; handlers resolve the token server-side and call this
// client.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	acceptHeader   = "application/vnd.github.v3+json"
)

// Client is an HTTP client for the GitHub API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets a custom HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new GitHub API client. Tokens are passed per call, not
// held by the client, since one client serves every share owner.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github API error (status %d): %s", e.StatusCode, e.Message)
}

func (c *Client) get(ctx context.Context, token, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, &apiErr); err != nil {
			apiErr.Message = string(body)
		}
		return &apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// Repo is the subset of repository metadata the proxy needs.
type Repo struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	FullName      string  `json:"full_name"`
	Description   *string `json:"description"`
	Language      *string `json:"language"`
	Private       bool    `json:"private"`
	DefaultBranch string  `json:"default_branch"`
}

// TreeEntry is one entry in a repository tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size *int64 `json:"size,omitempty"`
	URL  string `json:"url"`
}

// Tree is a recursive repository tree.
type Tree struct {
	SHA       string      `json:"sha"`
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// FileContent is a file fetched through the contents API. Content is
// base64-encoded as GitHub returns it; decoding is left to the consumer.
type FileContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Commit is one entry in a repository's commit history.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"author"`
	HTMLURL string `json:"html_url"`
}

// GetRepo fetches repository metadata.
func (c *Client) GetRepo(ctx context.Context, token, owner, repo string) (*Repo, error) {
	var r Repo
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.get(ctx, token, path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetTree fetches the full recursive tree of a branch. An empty branch
// resolves to the repository's default branch, which costs one extra repo
// lookup.
func (c *Client) GetTree(ctx context.Context, token, owner, repo, branch string) (*Tree, error) {
	if branch == "" {
		r, err := c.GetRepo(ctx, token, owner, repo)
		if err != nil {
			return nil, err
		}
		branch = r.DefaultBranch
	}

	var tree Tree
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	if err := c.get(ctx, token, path, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// GetFile fetches a single file's contents by path.
func (c *Client) GetFile(ctx context.Context, token, owner, repo, filePath string) (*FileContent, error) {
	var f FileContent
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(owner), url.PathEscape(repo), escapePath(filePath))
	if err := c.get(ctx, token, apiPath, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListCommits fetches a page of the repository's commit history.
func (c *Client) ListCommits(ctx context.Context, token, owner, repo string, page, perPage int) ([]Commit, error) {
	var commits []Commit
	path := fmt.Sprintf("/repos/%s/%s/commits?page=%d&per_page=%d",
		url.PathEscape(owner), url.PathEscape(repo), page, perPage)
	if err := c.get(ctx, token, path, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// ListUserRepos lists private repositories the token's user can access,
// for the share creation picker.
func (c *Client) ListUserRepos(ctx context.Context, token string) ([]Repo, error) {
	var repos []Repo
	if err := c.get(ctx, token, "/user/repos?type=private&per_page=100", &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// AuthenticatedUser is the OAuth user profile.
type AuthenticatedUser struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL string  `json:"avatar_url"`
}

// GetAuthenticatedUser fetches the profile of the token's user.
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (*AuthenticatedUser, error) {
	var u AuthenticatedUser
	if err := c.get(ctx, token, "/user", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// escapePath escapes each segment of a slash-separated repo path without
// escaping the slashes themselves.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
