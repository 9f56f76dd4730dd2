package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/clove/internal/assistant"
)

// searchRepositoryTool defines the search_repository MCP tool.
var searchRepositoryTool = mcp.NewTool("search_repository",
	mcp.WithDescription("Semantically search the code of an indexed repository. Returns matching chunks with file locations and scores."),
	mcp.WithString("repository_id",
		mcp.Required(),
		mcp.Description("Id of the indexed repository (see list_repositories)"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results (default 8, clamped to 3..15)"),
	),
	mcp.WithNumber("score_threshold",
		mcp.Description("Drop results scoring below this similarity"),
		mcp.Min(0),
		mcp.Max(1),
	),
	mcp.WithString("file_path",
		mcp.Description("Only search chunks of this file"),
	),
)

// buildContextTool defines the build_context MCP tool.
var buildContextTool = mcp.NewTool("build_context",
	mcp.WithDescription("Retrieve code for a question and pack it into a prompt context that fits the model's token budget."),
	mcp.WithString("repository_id",
		mcp.Required(),
		mcp.Description("Id of the indexed repository"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Question the context should answer"),
	),
	mcp.WithString("model",
		mcp.Description("Model whose context window sizes the budget (default gpt-4o-mini)"),
	),
	mcp.WithNumber("max_context_tokens",
		mcp.Description("Explicit token budget; overrides the model budget"),
	),
)

// listRepositoriesTool defines the list_repositories MCP tool.
var listRepositoriesTool = mcp.NewTool("list_repositories",
	mcp.WithDescription("List registered repositories with their index status."),
)

// askTool defines the ask MCP tool.
var askTool = mcp.NewTool("ask",
	mcp.WithDescription("Answer a question or analyze an issue about a repository using retrieved code as context."),
	mcp.WithString("task",
		mcp.Required(),
		mcp.Enum(string(assistant.TaskAnalyzeIssue), string(assistant.TaskSuggestSolution), string(assistant.TaskDocumentationChat)),
	),
	mcp.WithString("repository_id",
		mcp.Required(),
	),
	mcp.WithString("title",
		mcp.Description("Issue title (issue tasks)"),
	),
	mcp.WithString("body",
		mcp.Description("Issue description (issue tasks)"),
	),
	mcp.WithString("question",
		mcp.Description("Question (documentation-chat)"),
	),
)
