package assistant

// Task names a prompt the assistant can answer.
type Task string

const (
	TaskAnalyzeIssue      Task = "analyze-issue"
	TaskSuggestSolution   Task = "suggest-solution"
	TaskDocumentationChat Task = "documentation-chat"
)

// Tasks lists every task in display order.
var Tasks = []Task{TaskAnalyzeIssue, TaskSuggestSolution, TaskDocumentationChat}

type taskSpec struct {
	// system is sent as the system message; prompt as the user message.
	system string
	prompt string
	limit  int
	// threshold and maxTokens are passed to the repository query when set.
	threshold *float64
	maxTokens int
}

var chatThreshold = 0.5

var taskSpecs = map[Task]taskSpec{
	TaskAnalyzeIssue: {
		prompt: analyzeIssuePrompt,
		limit:  5,
	},
	TaskSuggestSolution: {
		prompt: suggestSolutionPrompt,
		limit:  8,
	},
	TaskDocumentationChat: {
		system:    documentationChatSystem,
		prompt:    "{{.question}}",
		limit:     8,
		threshold: &chatThreshold,
		maxTokens: 8000,
	},
}

const analyzeIssuePrompt = `Analyze this GitHub issue and provide guidance.

Issue: {{.title}}
Description: {{.body}}

Relevant Code:
{{.context}}

Provide:
1. Summary of what needs to be done
2. Which files to modify
3. Key areas to focus on
4. Potential challenges`

const suggestSolutionPrompt = `Help a beginner solve this GitHub issue.

Issue: {{.title}}
Description: {{.body}}

Relevant Code:
{{.context}}

Provide step-by-step solution:
1. Problem explanation
2. Files to modify
3. Code changes (before/after)
4. Testing steps
5. Best practices

Be clear and beginner-friendly.`

const documentationChatSystem = `You are an AI assistant helping developers understand a GitHub repository.

Repository: {{.name}} by {{.owner}}
{{.description}}

You have access to the repository's codebase through vector search. Use the provided code context to answer questions accurately.

Guidelines:
- Provide clear, concise explanations
- Reference specific files and code when relevant
- Explain technical concepts in an accessible way
- If you're unsure, say so rather than guessing
- Format code snippets with proper syntax highlighting
- Help users understand both the documentation and implementation

Available Context:
{{.context}}`
