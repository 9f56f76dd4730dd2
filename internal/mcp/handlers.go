package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/clove/internal/assistant"
	"github.com/ziadkadry99/clove/internal/contextbuilder"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/vectorstore"
)

// handleSearchRepository runs a repository query and formats the sources.
func (s *Server) handleSearchRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repository_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	req := rag.QueryRequest{
		Query:        query,
		RepositoryID: repoID,
		Limit:        request.GetInt("limit", 0),
		FilePath:     request.GetString("file_path", ""),
	}
	if _, ok := request.GetArguments()["score_threshold"]; ok {
		req.ScoreThreshold = vectorstore.Threshold(request.GetFloat("score_threshold", 0))
	}

	sources, err := s.ix.Query(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(sources) == 0 {
		return mcp.NewToolResultText("No results found. The repository may not be indexed yet. Run `clove index` to index it."), nil
	}
	return mcp.NewToolResultText(formatSources(sources)), nil
}

// handleBuildContext retrieves sources and packs them into a context.
func (s *Server) handleBuildContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repository_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	model := request.GetString("model", assistant.DefaultModel)

	sources, err := s.ix.Query(ctx, rag.QueryRequest{
		Query:        query,
		RepositoryID: repoID,
		Limit:        contextbuilder.MaxSources(model, 0, 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	res := s.ix.Service().BuildContext(sources, contextbuilder.Options{
		Model:            model,
		PromptTemplate:   "{{.context}}",
		MaxContextTokens: request.GetInt("max_context_tokens", 0),
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Included %d of %d source(s), ~%d tokens", res.IncludedSources, len(sources), res.TotalTokens)
	if res.Truncated {
		sb.WriteString(" (truncated)")
	}
	sb.WriteString("\n\n")
	sb.WriteString(res.Context)
	return mcp.NewToolResultText(sb.String()), nil
}

// handleListRepositories lists registered repositories.
func (s *Server) handleListRepositories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.ix.Store().List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list repositories: %v", err)), nil
	}
	if len(repos) == 0 {
		return mcp.NewToolResultText("No repositories registered. Run `clove index <path-or-url>` to add one."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d repository(ies):\n", len(repos))
	for _, r := range repos {
		fmt.Fprintf(&sb, "\n- %s", r.ID)
		if r.Owner != "" || r.Name != "" {
			fmt.Fprintf(&sb, " (%s/%s)", r.Owner, r.Name)
		}
		fmt.Fprintf(&sb, " status=%s chunks=%d", r.Status, r.ChunksIndexed)
		if r.URL != "" {
			fmt.Fprintf(&sb, " url=%s", r.URL)
		}
		if r.Error != "" {
			fmt.Fprintf(&sb, " error=%q", r.Error)
		}
	}
	sb.WriteString("\n")
	return mcp.NewToolResultText(sb.String()), nil
}

// handleAsk runs an assistant task.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := assistant.ParseTask(request.GetString("task", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.asst.Ask(ctx, assistant.Request{
		Task:         task,
		RepositoryID: request.GetString("repository_id", ""),
		Title:        request.GetString("title", ""),
		Body:         request.GetString("body", ""),
		Question:     request.GetString("question", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", task, err)), nil
	}
	return mcp.NewToolResultText(answer.Content), nil
}

func formatSources(sources []rag.Source) string {
	results := make([]vectorstore.SearchResult, len(sources))
	for i, src := range sources {
		results[i] = vectorstore.SearchResult{Score: src.Score, Text: src.Content, Metadata: src.Metadata}
	}
	return vectorstore.FormatResults(results)
}
