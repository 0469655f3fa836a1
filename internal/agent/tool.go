package agent

import (
	"context"
	"fmt"

	"github.com/DeafMist/api-directory/internal/models"
)

// SearchToolID is the identifier the search tool is exposed under.
const SearchToolID = "search-public-apis"

// Searcher is the ranked search contract the tool delegates to.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// SearchInput is the tool input.
type SearchInput struct {
	Query string `json:"query"`
}

// SearchTool exposes a Searcher as an agent tool.
type SearchTool struct {
	searcher Searcher
	limit    int
}

// NewSearchTool wraps searcher; limit <= 0 lets the searcher pick its default.
func NewSearchTool(searcher Searcher, limit int) *SearchTool {
	return &SearchTool{searcher: searcher, limit: limit}
}

// ID returns the tool identifier.
func (t *SearchTool) ID() string { return SearchToolID }

// Description is shown to callers that enumerate tools.
func (t *SearchTool) Description() string {
	return "Search and list public APIs from the cached API directory"
}

// Execute runs the search.
func (t *SearchTool) Execute(ctx context.Context, in SearchInput) ([]models.SearchResult, error) {
	res, err := t.searcher.Search(ctx, in.Query, t.limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SearchToolID, err)
	}
	return res, nil
}
