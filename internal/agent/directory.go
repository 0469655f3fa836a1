package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
	"github.com/DeafMist/api-directory/internal/processing"
)

// suggestedCategories are offered when a request is too vague to search.
var suggestedCategories = []string{"AI", "Weather", "Finance", "Music", "Games"}

// DirectoryAgent answers "find me an API for X" requests from the API directory.
// It turns the latest user message into a search, falling back to per-keyword
// searches when the whole phrase finds nothing, and formats the hits as markdown.
type DirectoryAgent struct {
	tool       *SearchTool
	maxResults int
	log        *slog.Logger
}

// NewDirectoryAgent creates the agent. maxResults caps how many APIs an answer lists.
func NewDirectoryAgent(tool *SearchTool, maxResults int, log *slog.Logger) *DirectoryAgent {
	if maxResults <= 0 {
		maxResults = 10
	}
	if log == nil {
		log = logger.Discard()
	}
	return &DirectoryAgent{tool: tool, maxResults: maxResults, log: log}
}

// Respond implements Agent.
func (a *DirectoryAgent) Respond(ctx context.Context, turns []Turn) (Response, error) {
	request := lastUserContent(turns)
	terms := processing.QueryTerms(request)
	if len(terms) == 0 {
		return Response{Text: vagueAnswer()}, nil
	}

	phrase := strings.Join(terms, " ")
	var toolResults []ToolResult

	results, err := a.search(ctx, phrase, &toolResults)
	if err != nil {
		return a.failed(ctx, phrase, err, toolResults)
	}

	if len(results) == 0 && len(terms) > 1 {
		seen := make(map[string]struct{})
		for _, term := range terms {
			hits, err := a.search(ctx, term, &toolResults)
			if err != nil {
				return a.failed(ctx, term, err, toolResults)
			}
			for _, h := range hits {
				if _, dup := seen[h.Name]; dup {
					continue
				}
				seen[h.Name] = struct{}{}
				results = append(results, h)
			}
		}
	}

	if len(results) > a.maxResults {
		results = results[:a.maxResults]
	}

	a.log.Info("answered directory request",
		slog.String("query", phrase),
		slog.Int("results", len(results)),
		slog.Int("tool_calls", len(toolResults)),
	)

	if len(results) == 0 {
		return Response{Text: noResultsAnswer(phrase), ToolResults: toolResults}, nil
	}
	return Response{Text: formatAnswer(phrase, results), ToolResults: toolResults}, nil
}

func (a *DirectoryAgent) search(ctx context.Context, query string, calls *[]ToolResult) ([]models.SearchResult, error) {
	in := SearchInput{Query: query}
	res, err := a.tool.Execute(ctx, in)
	if err != nil {
		return nil, err
	}
	*calls = append(*calls, ToolResult{Tool: a.tool.ID(), Input: in, Output: res})
	return res, nil
}

// failed turns a tool error into an explanatory answer. Cancellation still fails the turn.
func (a *DirectoryAgent) failed(ctx context.Context, query string, err error, calls []ToolResult) (Response, error) {
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
		return Response{}, fmt.Errorf("search %q: %w", query, err)
	}
	a.log.Error("directory search failed", slog.String("query", query), slog.Any("err", err))
	text := fmt.Sprintf("Sorry, I couldn't search the API directory for %q right now because the directory is unavailable. Please try again in a little while.", query)
	return Response{Text: text, ToolResults: calls}, nil
}

func lastUserContent(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		role := strings.ToLower(turns[i].Role)
		if role == RoleUser || role == "" {
			return turns[i].Content
		}
	}
	return ""
}

func vagueAnswer() string {
	return "Could you narrow that down a little? Tell me what kind of API you need, for example: " +
		strings.Join(suggestedCategories, ", ") + "."
}

func noResultsAnswer(query string) string {
	return fmt.Sprintf("I couldn't find any public APIs matching %q. Try a broader term or a category such as %s.",
		query, strings.Join(suggestedCategories, ", "))
}

func formatAnswer(query string, results []models.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are the top public APIs for %q:\n", query)

	for i, r := range results {
		b.WriteString("\n---\n")
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, r.Name)
		if desc := processing.Summarize(r.Description, 30); desc != "" {
			fmt.Fprintf(&b, "Description: %s\n", desc)
		}
		if len(r.Categories) > 0 {
			fmt.Fprintf(&b, "Category: %s\n", strings.Join(r.Categories, ", "))
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "Link: %s\n", r.URL)
		}
		fmt.Fprintf(&b, "Auth: %s\n", describeAuth(r.Auth))
		fmt.Fprintf(&b, "HTTPS: %s | CORS: %s\n", yesNo(r.HTTPS), r.CORS)
	}
	b.WriteString("---\n")
	return b.String()
}

func describeAuth(auth string) string {
	switch strings.ToLower(strings.TrimSpace(auth)) {
	case "", "no", "none":
		return "No auth needed"
	case models.DefaultAuth:
		return "Not specified"
	default:
		return auth + " required"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
