package store

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// maxSearchResults bounds how many session ids Search returns.
const maxSearchResults = 50

// SearchHit is one session matching a query.
type SearchHit struct {
	SessionID string
	Title     string
	Score     float64
}

func buildSearchMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	sessionMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	sessionMapping.AddFieldMappingsAt("title", titleField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	sessionMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = sessionMapping
	return indexMapping
}

// Search ranks sessions whose title or messages match query. The index is
// built in memory from the current sessions on every call.
func (s *Store) Search(query string) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	index, err := bleve.NewMemOnly(buildSearchMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for _, session := range sessions {
		var content strings.Builder
		for _, m := range session.Messages {
			content.WriteString(m.Content)
			content.WriteString("\n")
		}
		doc := map[string]interface{}{
			"title":   session.Title,
			"content": content.String(),
		}
		if err := batch.Index(session.ID, doc); err != nil {
			return nil, fmt.Errorf("index session %s: %w", session.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("index sessions: %w", err)
	}

	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2)

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(titleQuery, contentQuery))
	req.Size = maxSearchResults
	req.Fields = []string{"title"}

	result, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}

	hits := make([]SearchHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		title, _ := hit.Fields["title"].(string)
		hits = append(hits, SearchHit{
			SessionID: hit.ID,
			Title:     title,
			Score:     hit.Score,
		})
	}
	return hits, nil
}
