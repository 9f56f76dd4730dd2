package walker

import (
	"path/filepath"
	"strings"
)

// languages lists every recognised language with the extensions and exact
// file names that identify it. Extensions are lower case.
var languages = []struct {
	name     string
	exts     []string
	names    []string
	markdown bool
}{
	{name: "Go", exts: []string{".go"}},
	{name: "Go Module", names: []string{"go.mod"}},
	{name: "Python", exts: []string{".py", ".pyi"}},
	{name: "TypeScript", exts: []string{".ts", ".tsx", ".mts"}},
	{name: "JavaScript", exts: []string{".js", ".jsx", ".mjs", ".cjs"}},
	{name: "Java", exts: []string{".java"}},
	{name: "Rust", exts: []string{".rs"}},
	{name: "C", exts: []string{".c", ".h"}},
	{name: "C++", exts: []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx"}},
	{name: "C#", exts: []string{".cs"}},
	{name: "Ruby", exts: []string{".rb"}, names: []string{"Gemfile", "Rakefile"}},
	{name: "PHP", exts: []string{".php"}},
	{name: "Swift", exts: []string{".swift"}},
	{name: "Kotlin", exts: []string{".kt", ".kts"}},
	{name: "Scala", exts: []string{".scala", ".sc"}},
	{name: "Shell", exts: []string{".sh", ".bash", ".zsh"}},
	{name: "SQL", exts: []string{".sql"}},
	{name: "HTML", exts: []string{".html", ".htm"}},
	{name: "CSS", exts: []string{".css", ".scss", ".sass", ".less"}},
	{name: "YAML", exts: []string{".yaml", ".yml"}, names: []string{"docker-compose.yml", "docker-compose.yaml"}},
	{name: "JSON", exts: []string{".json"}},
	{name: "TOML", exts: []string{".toml"}},
	{name: "Terraform", exts: []string{".tf", ".tfvars"}},
	{name: "Markdown", exts: []string{".md", ".mdx", ".markdown"}, markdown: true},
	{name: "reStructuredText", exts: []string{".rst"}},
	{name: "Text", exts: []string{".txt"}},
	{name: "Protobuf", exts: []string{".proto"}},
	{name: "Lua", exts: []string{".lua"}},
	{name: "R", exts: []string{".r"}},
	{name: "Dart", exts: []string{".dart"}},
	{name: "Elixir", exts: []string{".ex", ".exs"}},
	{name: "Haskell", exts: []string{".hs"}},
	{name: "Perl", exts: []string{".pl", ".pm"}},
	{name: "Vue", exts: []string{".vue"}},
	{name: "Svelte", exts: []string{".svelte"}},
	{name: "Dockerfile", names: []string{"Dockerfile"}},
	{name: "Makefile", names: []string{"Makefile"}},
	{name: "Groovy", names: []string{"Jenkinsfile"}},
	{name: "Git", names: []string{".gitignore"}},
	{name: "Dotenv", names: []string{".env.example"}},
}

var (
	byExt      = map[string]string{}
	byName     = map[string]string{}
	markdownEx = map[string]bool{}
)

func init() {
	for _, l := range languages {
		for _, ext := range l.exts {
			byExt[ext] = l.name
			if l.markdown {
				markdownEx[ext] = true
			}
		}
		for _, n := range l.names {
			byName[n] = l.name
		}
	}
}

// DetectLanguage names the language of filename by exact file name first,
// then by case-insensitive extension. Unrecognised files are "unknown".
func DetectLanguage(filename string) string {
	base := filepath.Base(filename)
	if lang, ok := byName[base]; ok {
		return lang
	}
	if lang, ok := byExt[strings.ToLower(filepath.Ext(base))]; ok {
		return lang
	}
	return "unknown"
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	return markdownEx[strings.ToLower(filepath.Ext(path))]
}
