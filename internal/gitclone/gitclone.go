// Package gitclone checks out GitHub repositories into throwaway directories
// using the git CLI.
package gitclone

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/ragerr"
)

// DefaultBranch is cloned when no branch is given.
const DefaultBranch = "main"

var repoURLPattern = regexp.MustCompile(`github\.com[/:]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts owner and name from an https or ssh GitHub URL.
func ParseRepoURL(url string) (owner, name string, err error) {
	m := repoURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", ragerr.Validationf(ragerr.StageClone, "not a GitHub repository URL: %q", url)
	}
	return m[1], m[2], nil
}

var cloneSchemes = []string{"https://", "http://", "ssh://", "git://", "file://", "git@"}

// ValidateURL rejects URLs git could mistake for options and schemes other
// than the ones it clones over.
func ValidateURL(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ragerr.Validationf(ragerr.StageClone, "repository URL is required")
	}
	if strings.HasPrefix(url, "-") {
		return ragerr.Validationf(ragerr.StageClone, "invalid repository URL %q", url)
	}
	for _, scheme := range cloneSchemes {
		if strings.HasPrefix(url, scheme) {
			return nil
		}
	}
	return ragerr.Validationf(ragerr.StageClone, "unsupported repository URL %q", url)
}

// Checkout is a cloned working tree. Remove deletes it.
type Checkout struct {
	Path string
	log  zerolog.Logger
}

// Remove deletes the checkout directory. It is safe to call more than once.
func (c *Checkout) Remove() {
	if c == nil || c.Path == "" {
		return
	}
	if err := os.RemoveAll(c.Path); err != nil {
		c.log.Warn().Err(err).Str("path", c.Path).Msg("failed to remove checkout")
	}
}

// Cloner makes shallow single-branch clones under a work directory.
type Cloner struct {
	workDir string
	gitPath string
	log     zerolog.Logger
}

// NewCloner clones into subdirectories of workDir.
func NewCloner(workDir string, logger zerolog.Logger) *Cloner {
	return &Cloner{workDir: workDir, gitPath: "git", log: logger}
}

// Clone checks out the tip of branch into a fresh directory. The caller owns
// the checkout and must Remove it whatever happens next.
func (c *Cloner) Clone(ctx context.Context, url, branch string) (*Checkout, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}
	if strings.TrimSpace(branch) == "" {
		branch = DefaultBranch
	}

	dest := filepath.Join(c.workDir, uuid.NewString())
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, ragerr.NewProvider(ragerr.StageClone, "create clone directory", err)
	}
	checkout := &Checkout{Path: dest, log: c.log}

	cmd := exec.CommandContext(ctx, c.gitPath, "clone",
		"--depth", "1",
		"--branch", branch,
		"--single-branch",
		"--no-tags",
		"--",
		url, dest,
	)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.log.Debug().Str("url", url).Str("branch", branch).Str("dest", dest).Msg("cloning repository")
	if err := cmd.Run(); err != nil {
		checkout.Remove()
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, ragerr.NewProvider(ragerr.StageClone, "git clone "+url, err)
	}
	return checkout, nil
}
