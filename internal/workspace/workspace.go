// Package workspace prepares an isolated git checkout for a review run
// and computes the unified diff the rest of the pipeline operates on.
//
// Supplementing spec.md: the original reviewer sub-actor always assumed
// repoPath already pointed at the right checkout (see
// internal/review/sub_actor.go's repoPath field upstream); a complete
// implementation has to make that checkout itself, so this package
// wraps `git worktree add`/`remove` the way a real reviewer bot would.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/roasbeef/revsentry/internal/cache"
)

// Workspace is an isolated git worktree checked out at a specific ref,
// scoped to one review run and removed on Close.
type Workspace struct {
	repoRoot string
	path     string
	ref      string
	cleanup  bool
}

// Prepare creates a new worktree for repoRoot at ref under a temporary
// directory. The caller must call Close to remove it once the review
// finishes.
func Prepare(ctx context.Context, repoRoot, ref string) (*Workspace, error) {
	root, err := runGit(ctx, repoRoot, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("resolving repo root: %w", err)
	}

	dir, err := os.MkdirTemp("", "revsentry-worktree-*")
	if err != nil {
		return nil, fmt.Errorf("creating worktree dir: %w", err)
	}

	if _, err := runGit(ctx, root, "worktree", "add", "--detach", dir, ref); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("git worktree add %s %s: %w", dir, ref, err)
	}

	log.InfoS(ctx, "worktree prepared", "ref", ref, "path", dir)

	return &Workspace{repoRoot: root, path: dir, ref: ref, cleanup: true}, nil
}

// Existing wraps an already-checked-out repository path without
// creating a worktree, for callers that supply an external diff or
// already operate on the right checkout.
func Existing(repoRoot string) *Workspace {
	return &Workspace{repoRoot: repoRoot, path: repoRoot}
}

// Path is the filesystem location agents should read source from.
func (w *Workspace) Path() string { return w.path }

// Close removes the worktree, if one was created by Prepare. Existing
// workspaces are left untouched.
func (w *Workspace) Close(ctx context.Context) error {
	if !w.cleanup {
		return nil
	}

	if _, err := runGit(ctx, w.repoRoot, "worktree", "remove", "--force", w.path); err != nil {
		log.WarnS(ctx, "worktree remove failed", err, "path", w.path)
		return err
	}

	log.InfoS(ctx, "worktree removed", "path", w.path)
	return nil
}

// Diff computes the unified diff between sourceRef and targetRef in
// this workspace's repository.
func (w *Workspace) Diff(ctx context.Context, sourceRef, targetRef string) (string, error) {
	return runGit(ctx, w.repoRoot, "diff", sourceRef+"..."+targetRef)
}

// CurrentBranch returns the checked-out branch name, or "" if detached.
func (w *Workspace) CurrentBranch(ctx context.Context) string {
	out, err := runGit(ctx, w.path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// ResolveRef resolves ref to a commit SHA within this repo.
func (w *Workspace) ResolveRef(ctx context.Context, ref string) (string, error) {
	return runGit(ctx, w.repoRoot, "rev-parse", ref)
}

// ReadFile reads path relative to the workspace root.
func (w *Workspace) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(w.path, path))
}

// ReadFileCached is ReadFile with c as a read-through cache keyed by
// path, letting repeated reads of the same file while c is open skip
// the disk read. A nil c falls back to a plain ReadFile.
func (w *Workspace) ReadFileCached(ctx context.Context, c *cache.Cache, path string) (string, error) {
	if c == nil {
		b, err := w.ReadFile(path)
		return string(b), err
	}

	if content, ok, err := c.GetFile(ctx, path); err != nil {
		log.WarnS(ctx, "cache lookup failed", err, "path", path)
	} else if ok {
		return content, nil
	}

	b, err := w.ReadFile(path)
	if err != nil {
		return "", err
	}

	content := string(b)
	if err := c.PutFile(ctx, path, content); err != nil {
		log.WarnS(ctx, "cache put failed", err, "path", path)
	}
	return content, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()), nil
}
