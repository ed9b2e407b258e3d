// Copyright 2024 The ply Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gitutil wraps the git executable. It is the only place in the
// codebase that shells out; everything content-level (diffing, three-way
// application, commit storage) is delegated to git through this package.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/plydev/ply/internal/errors"
	"github.com/plydev/ply/internal/types"
)

// NewRunner returns a new Runner for a local repository directory.
func NewRunner(dir string) (*Runner, error) {
	const op errors.Op = "gitutil.NewRunner"
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, errors.E(op, errors.Git,
			fmt.Errorf("no 'git' program on path: %w", err))
	}

	return &Runner{
		gitPath: p,
		Dir:     dir,
	}, nil
}

// Runner runs git commands in a local git repo.
type Runner struct {
	// Path to the git executable.
	gitPath string

	// Dir is the directory the commands are run in.
	Dir string
}

type RunResult struct {
	Stdout string
	Stderr string
}

// Run runs a git command.
// Omit the 'git' part of the command.
// The first return value contains the output to Stdout and Stderr when
// running the command.
func (g *Runner) Run(ctx context.Context, args ...string) (RunResult, error) {
	return g.run(ctx, false, args...)
}

// RunVerbose runs a git command, echoing output to the process streams.
// Omit the 'git' part of the command.
func (g *Runner) RunVerbose(ctx context.Context, args ...string) (RunResult, error) {
	return g.run(ctx, true, args...)
}

func (g *Runner) run(ctx context.Context, verbose bool, args ...string) (RunResult, error) {
	const op errors.Op = "gitutil.run"

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	cmd.Dir = g.Dir
	cmd.Env = os.Environ()

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	if verbose {
		cmd.Stdout = io.MultiWriter(cmdStdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(cmdStderr, os.Stderr)
	} else {
		cmd.Stdout = cmdStdout
		cmd.Stderr = cmdStderr
	}

	err := cmd.Run()
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return RunResult{}, errors.E(op, errors.Git, &ExecError{
			Type:     determineErrorType(cmdStdout.String(), cmdStderr.String()),
			Args:     args,
			Err:      err,
			ExitCode: exitCode,
			StdOut:   cmdStdout.String(),
			StdErr:   cmdStderr.String(),
		})
	}
	return RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}, nil
}

// NewRepo returns a Repo for the given directory. The directory does not
// need to contain an initialized repository yet; Init takes care of that.
func NewRepo(path string) (*Repo, error) {
	const op errors.Op = "gitutil.NewRepo"
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	runner, err := NewRunner(abs)
	if err != nil {
		return nil, errors.E(op, errors.Repo(abs), err)
	}
	return &Repo{
		runner: runner,
		Path:   types.UniquePath(abs),
	}, nil
}

// Repo exposes the git operations the synchronization engine needs: commit,
// diff export, mailbox apply with three-way merge, log queries, resets and
// config access. Operations either succeed, fail cleanly, or fail with a
// distinguished condition carried as an error kind.
type Repo struct {
	runner *Runner
	Path   types.UniquePath
}

// Init initializes a repository in the Repo directory. Re-running it on an
// already-initialized repository is harmless.
func (r *Repo) Init(ctx context.Context) error {
	const op errors.Op = "gitutil.Init"
	if err := os.MkdirAll(r.Path.String(), 0700); err != nil {
		return errors.E(op, errors.IO, r.Path, err)
	}
	if _, err := r.runner.Run(ctx, "init", "--quiet"); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	const op errors.Op = "gitutil.GitDir"
	rr, err := r.runner.Run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", errors.E(op, r.Path, err)
	}
	dir := strings.TrimSpace(rr.Stdout)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Path.String(), dir)
	}
	return filepath.Clean(dir), nil
}

// Add stages the given paths.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	const op errors.Op = "gitutil.Add"
	args := append([]string{"add", "--"}, paths...)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// Remove deletes the given path from the working tree and stages the
// removal.
func (r *Repo) Remove(ctx context.Context, path string) error {
	const op errors.Op = "gitutil.Remove"
	if _, err := r.runner.Run(ctx, "rm", "--quiet", "--force", "--", path); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// Commit commits the staged changes with the given message.
func (r *Repo) Commit(ctx context.Context, msg string) error {
	const op errors.Op = "gitutil.Commit"
	if _, err := r.runner.Run(ctx, "commit", "--quiet", "-m", msg); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// CommitAmend replaces the message of the last commit.
func (r *Repo) CommitAmend(ctx context.Context, msg string) error {
	const op errors.Op = "gitutil.CommitAmend"
	if _, err := r.runner.Run(ctx, "commit", "--quiet", "--amend", "-m", msg); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// LogEntry returns the hash and full message of a single commit, walking
// skip commits backwards from ref (HEAD when ref is empty). The found
// return value is false when the walk has stepped past the repository root,
// which callers must treat as an explicit boundary rather than iterating
// forever.
func (r *Repo) LogEntry(ctx context.Context, ref string, skip int) (hash, msg string, found bool, err error) {
	const op errors.Op = "gitutil.LogEntry"
	args := []string{"log", "--pretty=format:%H%x00%B", "-1", fmt.Sprintf("--skip=%d", skip)}
	if ref != "" {
		args = append(args, ref)
	}
	rr, err := r.runner.Run(ctx, args...)
	if err != nil {
		return "", "", false, errors.E(op, r.Path, err)
	}
	if strings.TrimSpace(rr.Stdout) == "" {
		return "", "", false, nil
	}
	parts := strings.SplitN(rr.Stdout, "\x00", 2)
	if len(parts) != 2 {
		return "", "", false, errors.E(op, r.Path, errors.Internal,
			fmt.Errorf("unexpected log output: %q", rr.Stdout))
	}
	return strings.TrimSpace(parts[0]), parts[1], true, nil
}

// FormatPatch exports every commit after since as one mailbox-formatted
// patch file per commit, written into the repository directory. It returns
// the generated filenames in commit order.
func (r *Repo) FormatPatch(ctx context.Context, since string) ([]string, error) {
	const op errors.Op = "gitutil.FormatPatch"
	rr, err := r.runner.Run(ctx, "format-patch", since)
	if err != nil {
		return nil, errors.E(op, r.Path, err)
	}
	var filenames []string
	for _, line := range strings.Split(rr.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		filenames = append(filenames, line)
	}
	return filenames, nil
}

// ApplyMailbox applies a mailbox-formatted patch file as a new commit.
// Three outcomes are possible:
//
//  1. The patch applies: a commit is created and nil is returned.
//
//  2. The patch conflicts: the mailbox session is left open for manual
//     resolution and an error of kind PatchDidNotApplyCleanly is returned.
//
//  3. The patch content already matches upstream: no commit is created and
//     an error of kind PatchAlreadyApplied is returned. With a three-way
//     merge, git am reports this by skipping the patch and exiting zero
//     ("No changes -- Patch already applied"), so the outcome is detected
//     by HEAD not moving rather than by the exit status.
func (r *Repo) ApplyMailbox(ctx context.Context, path string, threeWay bool) error {
	const op errors.Op = "gitutil.ApplyMailbox"
	before, _, _, err := r.LogEntry(ctx, "", 0)
	if err != nil {
		return errors.E(op, err)
	}

	args := []string{"am", "--quiet"}
	if threeWay {
		args = append(args, "--3way")
	}
	args = append(args, path)
	_, runErr := r.runner.Run(ctx, args...)
	if runErr == nil {
		after, _, _, err := r.LogEntry(ctx, "", 0)
		if err != nil {
			return errors.E(op, err)
		}
		if after == before {
			return errors.E(op, r.Path, errors.PatchAlreadyApplied,
				fmt.Errorf("no new commit: content already present upstream"))
		}
		return nil
	}

	var execErr *ExecError
	if errors.As(runErr, &execErr) {
		switch execErr.Type {
		case PatchAlreadyApplied:
			// Older gits fail the am instead of skipping; end the session
			// so the caller can move on.
			if _, skipErr := r.runner.Run(ctx, "am", "--skip"); skipErr != nil {
				return errors.E(op, r.Path, skipErr)
			}
			return errors.E(op, r.Path, errors.PatchAlreadyApplied, execErr)
		case PatchDidNotApply:
			return errors.E(op, r.Path, errors.PatchDidNotApplyCleanly, execErr)
		}
	}
	return errors.E(op, r.Path, runErr)
}

// MailboxAbort restores the original branch state, discarding the
// in-progress mailbox session.
func (r *Repo) MailboxAbort(ctx context.Context) error {
	const op errors.Op = "gitutil.MailboxAbort"
	if _, err := r.runner.Run(ctx, "am", "--abort"); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// MailboxSkip skips the current patch of the in-progress mailbox session.
func (r *Repo) MailboxSkip(ctx context.Context) error {
	const op errors.Op = "gitutil.MailboxSkip"
	if _, err := r.runner.Run(ctx, "am", "--skip"); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// MailboxResolved commits the staged conflict resolution and continues the
// mailbox session.
func (r *Repo) MailboxResolved(ctx context.Context) error {
	const op errors.Op = "gitutil.MailboxResolved"
	if _, err := r.runner.Run(ctx, "am", "--resolved"); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// ResetHard resets the current branch and working tree to ref.
func (r *Repo) ResetHard(ctx context.Context, ref string) error {
	const op errors.Op = "gitutil.ResetHard"
	if _, err := r.runner.Run(ctx, "reset", "--hard", "--quiet", ref); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// ConfigGet reads a key from the repository-local config. The found return
// value is false when the key is not set.
func (r *Repo) ConfigGet(ctx context.Context, key string) (value string, found bool, err error) {
	const op errors.Op = "gitutil.ConfigGet"
	rr, err := r.runner.Run(ctx, "config", "--local", "--get", key)
	if err != nil {
		var execErr *ExecError
		// Exit status 1 means the key is unset.
		if errors.As(err, &execErr) && execErr.ExitCode == 1 {
			return "", false, nil
		}
		return "", false, errors.E(op, r.Path, err)
	}
	return strings.TrimSpace(rr.Stdout), true, nil
}

// ConfigAdd writes a key/value pair to the repository-local config.
func (r *Repo) ConfigAdd(ctx context.Context, key, value string) error {
	const op errors.Op = "gitutil.ConfigAdd"
	if _, err := r.runner.Run(ctx, "config", "--local", "--add", key, value); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// ConfigUnset removes a key from the repository-local config.
func (r *Repo) ConfigUnset(ctx context.Context, key string) error {
	const op errors.Op = "gitutil.ConfigUnset"
	if _, err := r.runner.Run(ctx, "config", "--local", "--unset", key); err != nil {
		return errors.E(op, r.Path, err)
	}
	return nil
}

// UncommittedChanges reports whether the working tree has uncommitted
// changes (staged or not) or untracked files.
func (r *Repo) UncommittedChanges(ctx context.Context) (bool, error) {
	const op errors.Op = "gitutil.UncommittedChanges"
	rr, err := r.runner.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, errors.E(op, r.Path, err)
	}
	return strings.TrimSpace(rr.Stdout) != "", nil
}
