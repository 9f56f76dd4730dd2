package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// projectTypePatterns maps marker files to human-readable project types
// and a recommended include glob.
var projectTypePatterns = map[string]struct {
	Name    string
	Include string
}{
	"go.mod":           {Name: "Go", Include: "**/*.go"},
	"package.json":     {Name: "Node.js/TypeScript", Include: "**/*.{js,ts,jsx,tsx}"},
	"requirements.txt": {Name: "Python", Include: "**/*.py"},
	"pyproject.toml":   {Name: "Python", Include: "**/*.py"},
	"Cargo.toml":       {Name: "Rust", Include: "**/*.rs"},
	"pom.xml":          {Name: "Java", Include: "**/*.java"},
	"build.gradle":     {Name: "Java/Kotlin", Include: "**/*.{java,kt}"},
	"Gemfile":          {Name: "Ruby", Include: "**/*.rb"},
	"composer.json":    {Name: "PHP", Include: "**/*.php"},
	"*.csproj":         {Name: ".NET", Include: "**/*.cs"},
}

// detectProjectType checks dir for well-known project markers.
func detectProjectType(dir string) (name string, include string) {
	for marker, info := range projectTypePatterns {
		matches, _ := filepath.Glob(filepath.Join(dir, marker))
		if len(matches) > 0 {
			return info.Name, info.Include
		}
	}
	return "", ""
}

// RunWizard runs an interactive configuration wizard and saves the result
// to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to clove! Let's configure retrieval for this repository.")
	fmt.Println()

	cfg := DefaultConfig()

	// Detect project type.
	projType, defaultInclude := detectProjectType(".")
	if projType != "" {
		fmt.Printf("Detected project type: %s\n\n", projType)
	}

	// 1. Embedding provider.
	embedPrompt := promptui.Select{
		Label: "Select embedding provider",
		Items: []string{"openai", "ollama"},
	}
	_, embedStr, err := embedPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("embedding provider selection: %w", err)
	}
	cfg.Embedding.Provider = ProviderType(embedStr)
	preset := GetPreset(cfg.Embedding.Provider)
	cfg.Embedding.Model = preset.EmbeddingModel
	cfg.Embedding.Dimensions = preset.Dimensions

	// 2. LLM provider for the assistant.
	llmPrompt := promptui.Select{
		Label: "Select LLM provider for questions and issue analysis",
		Items: []string{"openai", "openrouter", "ollama"},
	}
	_, llmStr, err := llmPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("llm provider selection: %w", err)
	}
	cfg.LLM.Provider = ProviderType(llmStr)
	cfg.LLM.Model = GetPreset(cfg.LLM.Provider).Model

	// 3. Vector store.
	backendPrompt := promptui.Select{
		Label: "Select vector store",
		Items: []string{"chromem (embedded, stored under the data dir)", "qdrant (remote server)"},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("vector store selection: %w", err)
	}
	if backendIdx == 1 {
		cfg.Vector.Backend = BackendQdrant
		qdrantPrompt := promptui.Prompt{
			Label:   "Qdrant URL",
			Default: cfg.Vector.QdrantURL,
		}
		if cfg.Vector.QdrantURL, err = qdrantPrompt.Run(); err != nil {
			return nil, fmt.Errorf("qdrant url: %w", err)
		}
	}

	// 4. Chunking strategy.
	strategyPrompt := promptui.Select{
		Label: "Select chunking strategy",
		Items: []string{"recursive (token-sized, language aware)", "lines (fixed line windows)"},
	}
	strategyIdx, _, err := strategyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("chunking strategy: %w", err)
	}
	if strategyIdx == 1 {
		cfg.Chunking.Strategy = "lines"
		linesPrompt := promptui.Prompt{
			Label:    "Lines per chunk",
			Default:  strconv.Itoa(cfg.Chunking.LinesPerChunk),
			Validate: positiveInt,
		}
		linesStr, err := linesPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("lines per chunk: %w", err)
		}
		cfg.Chunking.LinesPerChunk, _ = strconv.Atoi(strings.TrimSpace(linesStr))
	}

	// 5. Include patterns.
	includePrompt := promptui.Prompt{
		Label:   "Include patterns (comma-separated globs, blank for all text files)",
		Default: defaultInclude,
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	cfg.Walker.Include = splitAndTrim(includeStr)

	// 6. Extra exclude patterns.
	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	if extra := splitAndTrim(excludeStr); len(extra) > 0 {
		cfg.Walker.Exclude = append(append([]string{}, DefaultExcludes...), extra...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Check for API keys.
	for _, p := range []ProviderType{cfg.Embedding.Provider, cfg.LLM.Provider} {
		if envVar := APIKeyEnvVar(p); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment or .env before running clove index.\n", envVar)
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and drops empty entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
