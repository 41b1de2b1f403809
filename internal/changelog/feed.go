package changelog

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"
)

// Atom renders cl as an Atom feed. link is the public URL of the changelog
// page; commit links are built under commitBase when it is non-empty.
func Atom(cl *Changelog, link, commitBase string) (string, error) {
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s changelog", cl.Repository),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("Recent commits to %s", cl.Repository),
		Id:          link,
	}

	for _, entry := range cl.Entries {
		for _, c := range entry.Commits {
			item := &feeds.Item{
				Id:          c.Hash,
				Title:       c.Message,
				Description: c.Body,
				Author:      &feeds.Author{Name: c.Author, Email: c.AuthorEmail},
				Created:     c.when,
				Updated:     c.when,
			}
			if commitBase != "" {
				item.Link = &feeds.Link{Href: commitBase + c.Hash}
			} else {
				item.Link = &feeds.Link{Href: link}
			}
			feed.Items = append(feed.Items, item)
			if c.when.After(feed.Updated) {
				feed.Updated = c.when
			}
		}
	}

	if feed.Updated.IsZero() {
		feed.Updated = time.Now()
	}

	return feed.ToAtom()
}

// CommitURLBase returns the web URL prefix for commits of a GitHub repo.
func CommitURLBase(repo string) string {
	if repo == "" {
		return ""
	}
	return "https://github.com/" + repo + "/commit/"
}
