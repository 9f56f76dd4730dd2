package walker

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/ragerr"
)

const (
	// DefaultMaxFileSize is the maximum file size to process (10 MiB).
	DefaultMaxFileSize int64 = 10 << 20

	// binarySampleSize is how many leading bytes are inspected for binary content.
	binarySampleSize = 8192
	// binaryControlRatio is the control-byte ratio above which a file is binary.
	binaryControlRatio = 0.01
)

// DefaultAllowedDotfiles are dotfiles that are indexed despite the leading dot.
var DefaultAllowedDotfiles = []string{".gitignore", ".env.example"}

// FileInfo holds metadata about a single file discovered during traversal.
type FileInfo struct {
	Path      string // Absolute path on disk.
	RelPath   string // Slash-separated path relative to the root directory.
	Extension string // Lower-cased extension including the dot, or "".
	Size      int64
	Language  string
}

// WalkerConfig controls the behaviour of the Walk function.
type WalkerConfig struct {
	RootDir     string   // Root directory to walk.
	Include     []string // Glob patterns; only matching files are included.
	Exclude     []string // Glob patterns; matching files are excluded.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
	// AllowDotfiles lists dotfile names that are not skipped. Nil uses
	// DefaultAllowedDotfiles.
	AllowDotfiles []string
	Logger        zerolog.Logger
}

// Walk traverses the directory tree rooted at config.RootDir and returns
// metadata for every text file that passes filtering. Entries that cannot be
// read are skipped; only a missing or unusable root is an error.
func Walk(config WalkerConfig) ([]FileInfo, error) {
	if strings.TrimSpace(config.RootDir) == "" {
		return nil, ragerr.Validationf(ragerr.StageWalk, "root directory is required")
	}
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}
	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		return nil, ragerr.Validationf(ragerr.StageWalk, "root %s is not a readable directory", root)
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	allowed := config.AllowDotfiles
	if allowed == nil {
		allowed = DefaultAllowedDotfiles
	}
	log := config.Logger

	gitignorePatterns := loadGitignore(filepath.Join(root, ".gitignore"))

	var files []FileInfo

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Debug().Err(walkErr).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		name := d.Name()

		if d.IsDir() {
			if isIgnoredDir(name) || (isDotfile(name) && !isAllowedDotfile(name, allowed)) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if isDotfile(name) && !isAllowedDotfile(name, allowed) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if matchesGitignore(relPath, gitignorePatterns) {
			return nil
		}
		if !MatchesInclude(relPath, config.Include) {
			return nil
		}
		if MatchesExclude(relPath, config.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 || info.Size() > maxSize {
			log.Debug().Str("file", relPath).Int64("size", info.Size()).Msg("skipping by size")
			return nil
		}

		binary, err := IsBinaryFile(path)
		if err != nil {
			log.Debug().Err(err).Str("file", relPath).Msg("skipping unreadable file")
			return nil
		}
		if binary {
			log.Debug().Str("file", relPath).Msg("skipping binary file")
			return nil
		}

		files = append(files, FileInfo{
			Path:      path,
			RelPath:   filepath.ToSlash(relPath),
			Extension: strings.ToLower(filepath.Ext(name)),
			Size:      info.Size(),
			Language:  DetectLanguage(name),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}

	return files, nil
}

// IsBinaryFile samples the first 8192 bytes of path and reports whether it
// looks binary. Empty files count as binary since they yield no chunks.
func IsBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, binarySampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return IsBinary(buf[:n]), nil
}

// IsBinary reports whether more than 1% of sample are control bytes other
// than tab, newline and carriage return.
func IsBinary(sample []byte) bool {
	if len(sample) == 0 {
		return true
	}
	control := 0
	for _, b := range sample {
		if b == 0 || (b < 32 && b != '\t' && b != '\n' && b != '\r') {
			control++
		}
	}
	return float64(control)/float64(len(sample)) > binaryControlRatio
}

// loadGitignore reads a .gitignore file and returns its non-empty,
// non-comment lines as patterns.
func loadGitignore(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesGitignore checks if a relative path matches any gitignore pattern.
func matchesGitignore(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relPath)
	parts := strings.Split(normalized, "/")

	for _, pattern := range patterns {
		// Directory-only patterns match any parent component.
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.Trim(pattern, "/")

		if !strings.Contains(pattern, "/") {
			components := parts
			if dirOnly {
				components = parts[:len(parts)-1]
			}
			for _, part := range components {
				if matched, _ := filepath.Match(pattern, part); matched {
					return true
				}
			}
			continue
		}

		if matched, _ := filepath.Match(pattern, normalized); matched {
			return true
		}
		if strings.HasPrefix(normalized, pattern+"/") {
			return true
		}
	}
	return false
}
