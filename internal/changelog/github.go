package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultGitHubURL is the public GitHub REST API.
const DefaultGitHubURL = "https://api.github.com"

const (
	userAgent         = "Anbu-AI-Changelog"
	acceptHeader      = "application/vnd.github.v3+json"
	detailConcurrency = 8
	maxBodyBytes      = 8 << 20
)

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Date  string `json:"date"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
}

type githubCommitDetail struct {
	Stats *struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files"`
}

// GitHubSource reads commits from the GitHub REST API.
type GitHubSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGitHubSource creates a source for the API at baseURL (DefaultGitHubURL
// when empty). token, when set, is sent as a bearer token.
func NewGitHubSource(baseURL, token string, timeout time.Duration) *GitHubSource {
	if baseURL == "" {
		baseURL = DefaultGitHubURL
	}
	return &GitHubSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (g *GitHubSource) Name() string { return "github" }

// RequiresRepo implements Source.
func (g *GitHubSource) RequiresRepo() bool { return true }

// Commits implements Source. Per-commit file statistics are fetched
// concurrently; a failed detail fetch leaves that commit without them.
func (g *GitHubSource) Commits(ctx context.Context, repo string) ([]Commit, string, error) {
	if !ValidRepo(repo) {
		return nil, "", ErrRepoFormat
	}
	url := fmt.Sprintf("%s/repos/%s/commits?per_page=%d", g.baseURL, repo, MaxCommits)

	resp, err := g.get(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("list commits: %w", err)
	}
	defer resp.Body.Close()

	rateLimit := resp.Header.Get("X-RateLimit-Remaining")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body)
		if body.Message == "" {
			body.Message = fmt.Sprintf("GitHub API returned %d", resp.StatusCode)
		}
		return nil, rateLimit, &RemoteError{
			Status:             resp.StatusCode,
			Message:            body.Message,
			RateLimitRemaining: rateLimit,
		}
	}

	var listed []githubCommit
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&listed); err != nil {
		return nil, rateLimit, fmt.Errorf("decode commits: %w", err)
	}

	commits := make([]Commit, len(listed))
	for i, gc := range listed {
		c, err := newCommit(gc.SHA, gc.Commit.Author.Date, gc.Commit.Author.Name, gc.Commit.Author.Email, gc.Commit.Message)
		if err != nil {
			return nil, rateLimit, err
		}
		commits[i] = c
	}

	g2, gctx := errgroup.WithContext(ctx)
	g2.SetLimit(detailConcurrency)
	for i := range commits {
		i := i
		g2.Go(func() error {
			g.fillDetail(gctx, repo, &commits[i])
			return nil
		})
	}
	_ = g2.Wait()

	return commits, rateLimit, nil
}

// fillDetail adds file statistics to c. Errors are ignored.
func (g *GitHubSource) fillDetail(ctx context.Context, repo string, c *Commit) {
	resp, err := g.get(ctx, fmt.Sprintf("%s/repos/%s/commits/%s", g.baseURL, repo, c.Hash))
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	var detail githubCommitDetail
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&detail); err != nil {
		return
	}
	if detail.Files == nil {
		return
	}

	files := make([]string, 0, len(detail.Files))
	for _, f := range detail.Files {
		files = append(files, f.Filename)
	}
	c.Files = files
	c.FilesChanged = len(files)
	if detail.Stats != nil {
		c.Additions = detail.Stats.Additions
		c.Deletions = detail.Stats.Deletions
	}
}

func (g *GitHubSource) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return g.httpClient.Do(req)
}
