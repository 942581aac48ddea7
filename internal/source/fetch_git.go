package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// gitTarget is a classified git reference split into its repository URL
// and an optional pinned ref (branch, tag, or commit).
type gitTarget struct {
	URL string
	Ref string // "" means the repository's default branch.
}

// parseGitRef expands spec §4.8's `github:`/`gitlab:`/`bitbucket:` prefixes
// and the `user/repo[#branch|@tag]` shorthand into a full clone URL plus
// optional ref, without ever invoking a shell.
func parseGitRef(ref string) gitTarget {
	body := ref
	host := "github.com"
	switch {
	case strings.HasPrefix(body, "github:"):
		body, host = strings.TrimPrefix(body, "github:"), "github.com"
	case strings.HasPrefix(body, "gitlab:"):
		body, host = strings.TrimPrefix(body, "gitlab:"), "gitlab.com"
	case strings.HasPrefix(body, "bitbucket:"):
		body, host = strings.TrimPrefix(body, "bitbucket:"), "bitbucket.org"
	case strings.HasPrefix(body, "git+"):
		body = strings.TrimPrefix(body, "git+")
	}

	var refPart string
	if i := strings.IndexAny(body, "#@"); i >= 0 {
		refPart = body[i+1:]
		body = body[:i]
	}

	url := body
	if !strings.Contains(body, "://") && !strings.HasSuffix(body, ".git") && !strings.Contains(body, ".com") && !strings.Contains(body, ".org") {
		// bare `user/repo` shorthand.
		url = "https://" + host + "/" + body + ".git"
	} else if strings.HasPrefix(body, "ssh://") || strings.HasPrefix(body, "git://") || strings.HasPrefix(body, "http://") || strings.HasPrefix(body, "https://") {
		url = body
	} else {
		url = "https://" + body
		if !strings.HasSuffix(url, ".git") {
			url += ".git"
		}
	}
	return gitTarget{URL: url, Ref: refPart}
}

// cloneGit shallow-clones target into destDir using go-git's library API
// exclusively (spec §4.8: "fetching uses library calls only" — never
// `exec.Command("git", ...)`, which would reopen the shell-metacharacter
// risk §4.8 forbids).
func cloneGit(ctx context.Context, target gitTarget, destDir string) error {
	if err := os.RemoveAll(destDir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return err
	}

	opts := &git.CloneOptions{
		URL:          target.URL,
		Depth:        1,
		SingleBranch: true,
	}
	if target.Ref != "" {
		// Try as a branch first, then a tag; go-git resolves either via
		// ReferenceName when it exists on the remote.
		opts.ReferenceName = plumbing.NewBranchReferenceName(target.Ref)
	}

	_, err := git.PlainCloneContext(ctx, destDir, false, opts)
	if err != nil && target.Ref != "" {
		// Retry as a tag reference.
		opts.ReferenceName = plumbing.NewTagReferenceName(target.Ref)
		_, err = git.PlainCloneContext(ctx, destDir, false, opts)
	}
	return err
}

// pinned reports whether target names a fixed tag/commit rather than a
// floating branch, for the cache's TTL exemption (spec §6.5).
func (t gitTarget) pinned() bool {
	return t.Ref != "" && t.Ref != "main" && t.Ref != "master"
}
