package store

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Snapshot is everything the store holds, as written by Export.
type Snapshot struct {
	Sessions []ChatSession    `json:"sessions" yaml:"sessions"`
	Images   []GeneratedImage `json:"images" yaml:"images"`
	Current  string           `json:"currentSession,omitempty" yaml:"currentSession,omitempty"`
	Language string           `json:"language" yaml:"language"`
}

// Snapshot reads every collection.
func (s *Store) Snapshot() (Snapshot, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return Snapshot{}, err
	}
	images, err := s.ListImages()
	if err != nil {
		return Snapshot{}, err
	}
	current, err := s.CurrentSessionID()
	if err != nil {
		return Snapshot{}, err
	}
	lang, err := s.Language()
	if err != nil {
		return Snapshot{}, err
	}
	if sessions == nil {
		sessions = []ChatSession{}
	}
	if images == nil {
		images = []GeneratedImage{}
	}
	return Snapshot{Sessions: sessions, Images: images, Current: current, Language: lang}, nil
}

// Export writes a snapshot of the store to w in format.
func (s *Store) Export(w io.Writer, format string) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(snap)
	case FormatMarkdown:
		return writeMarkdown(w, snap)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

func writeMarkdown(w io.Writer, snap Snapshot) error {
	var b strings.Builder

	b.WriteString("# Anbu AI history\n\n")
	for _, session := range snap.Sessions {
		fmt.Fprintf(&b, "## %s\n\n", session.Title)
		fmt.Fprintf(&b, "**Model:** %s  \n", session.Model)
		fmt.Fprintf(&b, "**Created:** %s\n\n", formatMillis(session.CreatedAt))
		for _, m := range session.Messages {
			fmt.Fprintf(&b, "**%s** (%s)\n\n%s\n\n", m.Role, formatMillis(m.Timestamp), m.Content)
		}
		b.WriteString("---\n\n")
	}

	if len(snap.Images) > 0 {
		b.WriteString("## Images\n\n")
		for _, img := range snap.Images {
			fmt.Fprintf(&b, "- [%s](%s) (%s, %s)\n", img.Prompt, img.URL, img.Style, img.Size)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
