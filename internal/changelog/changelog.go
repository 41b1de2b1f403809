// Package changelog builds a date-grouped list of recent commits for a
// repository, read either from a local clone with the git CLI or from the
// GitHub REST API.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a repository's changelog is served from cache.
const DefaultCacheTTL = 5 * time.Minute

// MaxCommits is how many recent commits a changelog covers.
const MaxCommits = 50

// repoPattern matches an owner/name pair made of GitHub name characters.
var repoPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// ValidRepo reports whether repo is an owner/name pair safe to place in a
// URL path.
func ValidRepo(repo string) bool {
	if !repoPattern.MatchString(repo) {
		return false
	}
	owner, name, _ := strings.Cut(repo, "/")
	return owner != "." && owner != ".." && name != "." && name != ".."
}

// Sentinel errors for changelog requests
var (
	// ErrRepoRequired is returned when no repository was named and none is
	// configured.
	ErrRepoRequired = errors.New("repository not specified")
	// ErrRepoFormat is returned when the repository is not owner/name.
	ErrRepoFormat = errors.New("repository should be in format: owner/repo")
)

// RemoteError reports a non-2xx answer from the commit host.
type RemoteError struct {
	Status             int
	Message            string
	RateLimitRemaining string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("commit host returned %d: %s", e.Status, e.Message)
}

// Commit is one commit in the changelog.
type Commit struct {
	Hash         string   `json:"hash"`
	Date         string   `json:"date"`
	Author       string   `json:"author"`
	AuthorEmail  string   `json:"authorEmail"`
	Message      string   `json:"message"`
	Body         string   `json:"body"`
	Files        []string `json:"files"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	FilesChanged int      `json:"filesChanged"`

	when time.Time
}

// Entry groups the commits of one UTC calendar day.
type Entry struct {
	Date    string   `json:"date"`
	Commits []Commit `json:"commits"`
}

// Changelog is the response document.
type Changelog struct {
	Entries            []Entry `json:"changelog"`
	TotalCommits       int     `json:"totalCommits"`
	Timestamp          string  `json:"timestamp"`
	Repository         string  `json:"repository"`
	RateLimitRemaining *string `json:"rateLimitRemaining"`
	Message            string  `json:"message,omitempty"`
}

// Source lists recent commits of a repository. rateLimit is the remaining
// request quota reported by the host, or empty when the host has none.
type Source interface {
	Name() string
	RequiresRepo() bool
	Commits(ctx context.Context, repo string) (commits []Commit, rateLimit string, err error)
}

// SplitMessage splits a commit message into its subject and body at the
// first blank line.
func SplitMessage(msg string) (subject, body string) {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	subject, body, _ = strings.Cut(msg, "\n\n")
	return strings.TrimRight(subject, "\n"), strings.TrimSpace(body)
}

// Group buckets commits by UTC date, newest day first. Commits keep their
// relative order within a day.
func Group(commits []Commit) []Entry {
	byDate := make(map[string][]Commit)
	var dates []string
	for _, c := range commits {
		day := c.when.UTC().Format(time.DateOnly)
		if _, ok := byDate[day]; !ok {
			dates = append(dates, day)
		}
		byDate[day] = append(byDate[day], c)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	entries := make([]Entry, 0, len(dates))
	for _, d := range dates {
		entries = append(entries, Entry{Date: d, Commits: byDate[d]})
	}
	return entries
}

// newCommit fills the parsed timestamp and subject/body split.
func newCommit(hash, date, author, email, message string) (Commit, error) {
	when, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return Commit{}, fmt.Errorf("commit %s: bad date %q: %w", hash, date, err)
	}
	subject, body := SplitMessage(message)
	return Commit{
		Hash:        hash,
		Date:        date,
		Author:      author,
		AuthorEmail: email,
		Message:     subject,
		Body:        body,
		Files:       []string{},
		when:        when,
	}, nil
}

type cached struct {
	changelog *Changelog
	expires   time.Time
}

// Service serves changelogs from a Source through a per-repository cache.
type Service struct {
	source      Source
	defaultRepo string
	ttl         time.Duration
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

// NewService creates a service over source. defaultRepo is used when a
// request names no repository.
func NewService(source Source, defaultRepo string) *Service {
	return &Service{
		source:      source,
		defaultRepo: defaultRepo,
		ttl:         DefaultCacheTTL,
		now:         time.Now,
		cache:       make(map[string]cached),
	}
}

// Source returns the configured commit source.
func (s *Service) Source() Source {
	return s.source
}

// Changelog returns the grouped changelog for repo.
//
// Returns ErrRepoRequired when the source needs a repository and none was
// given or configured, ErrRepoFormat when repo is not owner/name, and
// *RemoteError when the host answers with a non-2xx status.
func (s *Service) Changelog(ctx context.Context, repo string) (*Changelog, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		repo = s.defaultRepo
	}
	if repo == "" && s.source.RequiresRepo() {
		return nil, ErrRepoRequired
	}
	if repo != "" && !ValidRepo(repo) {
		return nil, ErrRepoFormat
	}

	// A local clone has one history whatever label the caller uses.
	key := repo
	if !s.source.RequiresRepo() {
		key = ""
	}

	now := s.now()

	s.mu.Lock()
	if c, ok := s.cache[key]; ok && now.Before(c.expires) {
		s.mu.Unlock()
		return labeled(c.changelog, repo), nil
	}
	s.mu.Unlock()

	commits, rateLimit, err := s.source.Commits(ctx, repo)
	if err != nil {
		return nil, err
	}

	cl := &Changelog{
		Entries:      Group(commits),
		TotalCommits: len(commits),
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		Repository:   repo,
	}
	if rateLimit != "" {
		cl.RateLimitRemaining = &rateLimit
	}
	if len(commits) == 0 {
		cl.Message = "No commits found"
	}

	s.mu.Lock()
	for k, c := range s.cache {
		if !now.Before(c.expires) {
			delete(s.cache, k)
		}
	}
	s.cache[key] = cached{changelog: cl, expires: now.Add(s.ttl)}
	s.mu.Unlock()

	return cl, nil
}

// labeled returns cl under the repository name the caller asked for.
func labeled(cl *Changelog, repo string) *Changelog {
	if cl.Repository == repo {
		return cl
	}
	out := *cl
	out.Repository = repo
	return &out
}
