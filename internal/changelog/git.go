package changelog

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Field and record separators for the git log format below.
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
	statsSep  = "\x1d"
)

// gitLogFormat prints hash, ISO author date, author name, author email and
// raw message, then a marker after which --numstat lines follow.
const gitLogFormat = recordSep + "%H" + fieldSep + "%aI" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%B" + statsSep

// GitSource reads commits from a local clone with the git CLI.
type GitSource struct {
	dir string
}

// NewGitSource creates a source for the repository checked out at dir.
func NewGitSource(dir string) *GitSource {
	return &GitSource{dir: dir}
}

// Name implements Source.
func (g *GitSource) Name() string { return "git" }

// RequiresRepo implements Source. The clone is fixed, so the repository
// name is only a label.
func (g *GitSource) RequiresRepo() bool { return false }

// Commits implements Source.
func (g *GitSource) Commits(ctx context.Context, _ string) ([]Commit, string, error) {
	cmd := exec.CommandContext(ctx, "git", "log",
		"-n", strconv.Itoa(MaxCommits),
		"--no-color",
		"--numstat",
		"--pretty=format:"+gitLogFormat,
	)
	cmd.Dir = g.dir

	output, err := cmd.Output()
	if err != nil {
		return nil, "", fmt.Errorf("git log failed: %w", err)
	}

	commits, err := parseGitLog(string(output))
	if err != nil {
		return nil, "", err
	}
	return commits, "", nil
}

// parseGitLog parses output produced with gitLogFormat and --numstat.
func parseGitLog(out string) ([]Commit, error) {
	var commits []Commit

	for _, record := range strings.Split(out, recordSep) {
		if strings.TrimSpace(record) == "" {
			continue
		}

		header, stats, _ := strings.Cut(record, statsSep)
		fields := strings.SplitN(header, fieldSep, 5)
		if len(fields) != 5 {
			return nil, fmt.Errorf("failed to parse git log: record has %d fields", len(fields))
		}

		c, err := newCommit(fields[0], fields[1], fields[2], fields[3], fields[4])
		if err != nil {
			return nil, err
		}

		scanner := bufio.NewScanner(strings.NewReader(stats))
		for scanner.Scan() {
			parts := strings.SplitN(scanner.Text(), "\t", 3)
			if len(parts) != 3 {
				continue
			}
			// Binary files report "-" for both counts.
			add, _ := strconv.Atoi(parts[0])
			del, _ := strconv.Atoi(parts[1])
			c.Additions += add
			c.Deletions += del
			c.Files = append(c.Files, parts[2])
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to parse git numstat: %w", err)
		}
		c.FilesChanged = len(c.Files)

		commits = append(commits, c)
	}

	return commits, nil
}
