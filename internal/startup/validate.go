// Package startup wires the anbu gateway together from configuration.
//
// It creates the chat provider, image client, history store, status checker
// and changelog service, validates the optional external dependencies
// (upstream reachability, a git checkout for the git changelog source) and
// runs the web server until a shutdown signal arrives.
package startup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/config"
)

var (
	// ErrUpstreamUnreachable is returned when an upstream host does not answer
	ErrUpstreamUnreachable = errors.New("upstream not reachable")
	// ErrGitNotFound is returned when the git binary is not on PATH
	ErrGitNotFound = errors.New("git executable not found")
	// ErrNotRepository is returned when changelog.dir is not a git checkout
	ErrNotRepository = errors.New("changelog.dir is not a git repository")
)

const (
	// upstreamTimeout is the timeout for the reachability check
	upstreamTimeout = 5 * time.Second
	// gitTimeout bounds the repository check
	gitTimeout = 5 * time.Second
)

// ValidateUpstream checks that the host behind endpoint answers HTTP.
// Any response, whatever its status, counts as reachable: provider
// endpoints commonly reject a bare HEAD.
func ValidateUpstream(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrUpstreamUnreachable, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: URL must use http or https scheme, got: %s", ErrUpstreamUnreachable, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%w: URL must have a host", ErrUpstreamUnreachable)
	}

	// Drop query and fragment so credentials in them are never sent.
	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, parsedURL.String(), nil)
	if err != nil {
		return fmt.Errorf("%w at %s: failed to create request: %v", ErrUpstreamUnreachable, parsedURL.Host, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			if errors.Is(netErr.Err, syscall.ECONNREFUSED) {
				return fmt.Errorf("%w at %s: connection refused", ErrUpstreamUnreachable, parsedURL.Host)
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w at %s: connection timeout", ErrUpstreamUnreachable, parsedURL.Host)
		}
		return fmt.Errorf("%w at %s: %v", ErrUpstreamUnreachable, parsedURL.Host, err)
	}
	resp.Body.Close()

	return nil
}

// ValidateGit checks that git is installed and dir is inside a checkout.
func ValidateGit(ctx context.Context, dir string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--is-inside-work-tree")
	out, err := cmd.Output()
	if err != nil || strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("%w: %s", ErrNotRepository, dir)
	}

	return nil
}

// ValidateAll runs the checks that apply to cfg. The chat upstream is only
// checked for the deepenglish provider; SDK providers report failures per
// request.
func ValidateAll(ctx context.Context, cfg *config.Config) error {
	if cfg.Chat.Provider == config.ProviderDeepEnglish {
		if err := ValidateUpstream(ctx, cfg.Chat.Endpoint); err != nil {
			return fmt.Errorf("chat endpoint: %w", err)
		}
	}

	if err := ValidateUpstream(ctx, cfg.Image.Endpoint); err != nil {
		return fmt.Errorf("image endpoint: %w", err)
	}

	if cfg.Changelog.Source == config.SourceGit {
		if err := ValidateGit(ctx, cfg.Changelog.Dir); err != nil {
			return err
		}
	}

	return nil
}
