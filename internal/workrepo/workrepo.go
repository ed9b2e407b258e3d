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

// Package workrepo orchestrates the working repository: the local fork of
// upstream where new patches are created (save) and where the patch series
// is reapplied to build a fresh patch branch (restore). Which patches are
// applied is tracked entirely through commit-message annotations, so every
// operation is resumable from durable state alone.
package workrepo

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/plydev/ply/internal/annotation"
	"github.com/plydev/ply/internal/conflict"
	"github.com/plydev/ply/internal/errors"
	"github.com/plydev/ply/internal/gitutil"
	"github.com/plydev/ply/internal/patchrepo"
	"github.com/plydev/ply/internal/printer"
	"github.com/plydev/ply/internal/types"
)

// PatchRepoConfigKey is the git config key linking a working repository to
// its patch repository.
const PatchRepoConfigKey = "ply.patchrepo"

// Status of a working repository.
type Status string

const (
	// StatusRestoreInProgress means a restore stopped on a conflict and is
	// waiting for resolve, skip or abort.
	StatusRestoreInProgress Status = "restore-in-progress"

	// StatusNoPatchesApplied means the branch tip carries no patch
	// annotations.
	StatusNoPatchesApplied Status = "no-patches-applied"

	// StatusAllPatchesApplied means an annotated run of patch commits sits
	// at the branch tip.
	StatusAllPatchesApplied Status = "all-patches-applied"
)

// WorkingRepo is the fork under active development.
type WorkingRepo struct {
	git *gitutil.Repo
}

// Open returns a WorkingRepo for the given directory.
func Open(path string) (*WorkingRepo, error) {
	const op errors.Op = "workrepo.Open"
	git, err := gitutil.NewRepo(path)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &WorkingRepo{git: git}, nil
}

// Path returns the absolute path of the working repository.
func (w *WorkingRepo) Path() types.UniquePath {
	return w.git.Path
}

// PatchRepoPath returns the configured patch repository path, if any.
func (w *WorkingRepo) PatchRepoPath(ctx context.Context) (string, bool, error) {
	const op errors.Op = "workrepo.PatchRepoPath"
	path, found, err := w.git.ConfigGet(ctx, PatchRepoConfigKey)
	if err != nil {
		return "", false, errors.E(op, w.git.Path, err)
	}
	return path, found, nil
}

// PatchRepo returns the linked patch repository.
func (w *WorkingRepo) PatchRepo(ctx context.Context) (*patchrepo.PatchRepo, error) {
	const op errors.Op = "workrepo.PatchRepo"
	path, found, err := w.PatchRepoPath(ctx)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if !found {
		return nil, errors.E(op, w.git.Path, errors.NoLinkedPatchRepo)
	}
	pr, err := patchrepo.Open(path)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return pr, nil
}

// Link associates this working repository with a patch repository by
// persisting its path in the repository-local config.
func (w *WorkingRepo) Link(ctx context.Context, patchRepoPath string) error {
	const op errors.Op = "workrepo.Link"
	_, found, err := w.PatchRepoPath(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if found {
		return errors.E(op, w.git.Path, errors.AlreadyLinkedToPatchRepo)
	}
	abs, err := filepath.Abs(patchRepoPath)
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	if err := w.git.ConfigAdd(ctx, PatchRepoConfigKey, abs); err != nil {
		return errors.E(op, w.git.Path, err)
	}
	return nil
}

// Unlink removes the patch repository association.
func (w *WorkingRepo) Unlink(ctx context.Context) error {
	const op errors.Op = "workrepo.Unlink"
	_, found, err := w.PatchRepoPath(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if !found {
		return errors.E(op, w.git.Path, errors.NoLinkedPatchRepo)
	}
	if err := w.git.ConfigUnset(ctx, PatchRepoConfigKey); err != nil {
		return errors.E(op, w.git.Path, err)
	}
	return nil
}

// Status reports the state of the working repository. Purely observational.
func (w *WorkingRepo) Status(ctx context.Context) (Status, error) {
	const op errors.Op = "workrepo.Status"
	gitDir, err := w.git.GitDir(ctx)
	if err != nil {
		return "", errors.E(op, err)
	}
	state, err := conflict.Load(gitDir)
	if err != nil {
		return "", errors.E(op, err)
	}
	if state.Conflicted {
		return StatusRestoreInProgress, nil
	}

	applied, err := w.appliedPatches(ctx)
	if err != nil {
		return "", errors.E(op, err)
	}
	if len(applied) == 0 {
		return StatusNoPatchesApplied, nil
	}
	return StatusAllPatchesApplied, nil
}

// Save turns every commit after since into one patch file per commit and
// stores them in the patch repository. Commits that already carry a patch
// annotation keep their patch name; new commits get a name derived from the
// commit position and subject, nested under prefix when one is given. The
// working branch is then reset and restored so every commit ends up
// annotated.
func (w *WorkingRepo) Save(ctx context.Context, since, prefix string) error {
	const op errors.Op = "workrepo.Save"
	pr, err := w.PatchRepo(ctx)
	if err != nil {
		return errors.E(op, err)
	}

	if err := w.requireClean(ctx); err != nil {
		return errors.E(op, err)
	}
	dirty, err := pr.UncommittedChanges(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if dirty {
		return errors.E(op, pr.Path(), errors.UncommittedChanges)
	}

	if strings.Contains(since, "..") {
		return errors.E(op, errors.InvalidParam,
			fmt.Errorf("commit ranges are not supported: %q", since))
	}

	filenames, parentPatchName, err := w.createPatches(ctx, since)
	if err != nil {
		return errors.E(op, err)
	}
	if len(filenames) == 0 {
		return errors.E(op, errors.InvalidParam,
			fmt.Errorf("no commits found after %q", since))
	}

	patchNames := make([]string, 0, len(filenames))
	for _, filename := range filenames {
		data, err := os.ReadFile(filepath.Join(w.git.Path.String(), filename))
		if err != nil {
			return errors.E(op, errors.IO, err)
		}

		// A commit that already carries an annotation keeps its patch
		// name; this is what makes re-saving a tracked patch refresh the
		// same file.
		patchName, found := annotation.Patch(string(data))
		if !found {
			// Strip the NNNN- prefix git format-patch provides; like
			// quilt, ply orders patches through the series file instead.
			patchName = filename
			if i := strings.Index(filename, "-"); i >= 0 {
				patchName = filename[i+1:]
			}
			if prefix != "" {
				patchName = path.Join(prefix, patchName)
			}
		}
		patchNames = append(patchNames, patchName)
	}

	if err := w.storePatchFiles(ctx, pr, patchNames, filenames, parentPatchName); err != nil {
		return errors.E(op, err)
	}

	var commitMsg string
	if len(patchNames) > 1 {
		commitMsg = fmt.Sprintf("Adding %d patches", len(patchNames))
	} else {
		commitMsg = fmt.Sprintf("Adding %s", patchNames[0])
	}
	if err := w.commitToPatchRepo(ctx, pr, commitMsg); err != nil {
		return errors.E(op, err)
	}

	// Roll back and reapply so the working repo carries annotations for
	// the just-saved patches as well.
	seriesNames, err := pr.Series()
	if err != nil {
		return errors.E(op, err)
	}
	if err := w.git.ResetHard(ctx, fmt.Sprintf("HEAD~%d", len(seriesNames))); err != nil {
		return errors.E(op, err)
	}
	return w.Restore(ctx, true)
}

// Restore applies every series patch not yet represented by an annotated
// commit, in series order, one patch per commit. A patch that conflicts
// stops the loop: its name is persisted in the conflict marker and the
// failure propagates. A patch whose content already matches upstream is
// removed from the patch repository with a warning and the loop continues.
// Patch repository bookkeeping accumulated during the run is committed once
// at the end.
func (w *WorkingRepo) Restore(ctx context.Context, threeWayMerge bool) error {
	const op errors.Op = "workrepo.Restore"
	pr, err := w.PatchRepo(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := w.requireClean(ctx); err != nil {
		return errors.E(op, err)
	}

	applied, err := w.appliedPatches(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, name := range applied {
		appliedSet[name] = true
	}

	seriesNames, err := pr.Series()
	if err != nil {
		return errors.E(op, err)
	}

	pc := printer.FromContextOrDie(ctx)
	for _, patchName := range seriesNames {
		if appliedSet[patchName] {
			continue
		}

		patchPath := filepath.Join(pr.Path().String(), filepath.FromSlash(patchName))
		err := w.git.ApplyMailbox(ctx, patchPath, threeWayMerge)
		switch {
		case err == nil:
			if err := w.addPatchAnnotation(ctx, patchName); err != nil {
				return errors.E(op, err)
			}

		case errors.IsKind(err, errors.PatchAlreadyApplied):
			if err := pr.RemovePatch(ctx, patchName); err != nil {
				return errors.E(op, err)
			}
			pc.OptPrintf(printer.NewOpt().Stderr().Repo(pr.Path()),
				"warning: patch %q appears to be upstream, removing from patch-repo\n",
				patchName)

		case errors.IsKind(err, errors.PatchDidNotApplyCleanly):
			// Memorize the conflicting patch name so resolve/skip/abort
			// can pick up where this run stopped.
			gitDir, dirErr := w.git.GitDir(ctx)
			if dirErr != nil {
				return errors.E(op, dirErr)
			}
			if saveErr := conflict.Save(gitDir, patchName); saveErr != nil {
				return errors.E(op, saveErr)
			}
			return errors.E(op, errors.Patch(patchName), err)

		default:
			return errors.E(op, err)
		}
	}

	// A single commit for all the bookkeeping (patch refreshes and
	// removals) keeps the patch-repo history quiet.
	dirty, err := pr.UncommittedChanges(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if dirty {
		if err := w.commitToPatchRepo(ctx, pr, "Refreshing patches"); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// Resolve continues a conflicted restore after the user fixed the conflict
// and staged the result. The blocked patch is regenerated from the
// resolved commit and stored into the patch repository; the patch-repo
// commit is deferred to the single end-of-restore commit.
func (w *WorkingRepo) Resolve(ctx context.Context) error {
	const op errors.Op = "workrepo.Resolve"
	patchName, err := w.finishConflict(ctx, w.git.MailboxResolved)
	if err != nil {
		return errors.E(op, err)
	}

	pr, err := w.PatchRepo(ctx)
	if err != nil {
		return errors.E(op, err)
	}

	filenames, parentPatchName, err := w.createPatches(ctx, "HEAD^")
	if err != nil {
		return errors.E(op, err)
	}
	if err := w.storePatchFiles(ctx, pr, []string{patchName}, filenames, parentPatchName); err != nil {
		return errors.E(op, err)
	}
	if err := w.addPatchAnnotation(ctx, patchName); err != nil {
		return errors.E(op, err)
	}
	return w.Restore(ctx, true)
}

// Skip drops the conflicting patch permanently and continues the restore.
// Useful when upstream already contains an equivalent change.
func (w *WorkingRepo) Skip(ctx context.Context) error {
	const op errors.Op = "workrepo.Skip"
	patchName, err := w.finishConflict(ctx, w.git.MailboxSkip)
	if err != nil {
		return errors.E(op, err)
	}

	pr, err := w.PatchRepo(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := pr.RemovePatch(ctx, patchName); err != nil {
		return errors.E(op, err)
	}
	return w.Restore(ctx, true)
}

// Abort gives up on the conflicting patch, discarding any partial
// resolution. Patches that applied cleanly earlier in the same restore run
// are not rolled back.
func (w *WorkingRepo) Abort(ctx context.Context) error {
	const op errors.Op = "workrepo.Abort"
	if _, err := w.finishConflict(ctx, w.git.MailboxAbort); err != nil {
		return errors.E(op, err)
	}
	// Throw away any conflict resolution changes.
	if err := w.git.ResetHard(ctx, "HEAD"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Rollback hard-resets the working branch to the last commit without a
// patch annotation, i.e. the inferred upstream base. The patch repository
// is untouched.
func (w *WorkingRepo) Rollback(ctx context.Context) error {
	const op errors.Op = "workrepo.Rollback"
	if err := w.requireClean(ctx); err != nil {
		return errors.E(op, err)
	}
	basedOn, err := w.lastUpstreamHash(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := w.git.ResetHard(ctx, basedOn); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// CheckPatchRepo runs the linked patch repository's consistency check.
func (w *WorkingRepo) CheckPatchRepo(ctx context.Context) (patchrepo.CheckResult, error) {
	const op errors.Op = "workrepo.CheckPatchRepo"
	pr, err := w.PatchRepo(ctx)
	if err != nil {
		return patchrepo.CheckResult{}, errors.E(op, err)
	}
	result, err := pr.Check()
	if err != nil {
		return patchrepo.CheckResult{}, errors.E(op, err)
	}
	return result, nil
}

// AppliedPatches returns the names of the patches currently applied to the
// working branch, newest first.
func (w *WorkingRepo) AppliedPatches(ctx context.Context) ([]string, error) {
	const op errors.Op = "workrepo.AppliedPatches"
	applied, err := w.appliedPatches(ctx)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return applied, nil
}

// appliedPatches walks commit messages backwards from HEAD, collecting
// patch annotations until the first unannotated commit (the upstream
// base). The walk is bounded: stepping past the repository root without
// finding an unannotated commit is an explicit error, not an endless loop.
func (w *WorkingRepo) appliedPatches(ctx context.Context) ([]string, error) {
	const op errors.Op = "workrepo.appliedPatches"
	var names []string
	for skip := 0; ; skip++ {
		_, msg, found, err := w.git.LogEntry(ctx, "", skip)
		if err != nil {
			return nil, errors.E(op, err)
		}
		if !found {
			return nil, errors.E(op, w.git.Path, errors.NoUpstreamBase,
				fmt.Errorf("every commit carries a patch annotation"))
		}
		name, ok := annotation.Patch(msg)
		if !ok {
			return names, nil
		}
		names = append(names, name)
	}
}

// lastUpstreamHash returns the hash of the newest commit that did not come
// from a patch.
func (w *WorkingRepo) lastUpstreamHash(ctx context.Context) (string, error) {
	const op errors.Op = "workrepo.lastUpstreamHash"
	applied, err := w.appliedPatches(ctx)
	if err != nil {
		return "", errors.E(op, err)
	}
	hash, _, found, err := w.git.LogEntry(ctx, "", len(applied))
	if err != nil {
		return "", errors.E(op, err)
	}
	if !found {
		return "", errors.E(op, w.git.Path, errors.NoUpstreamBase,
			fmt.Errorf("no commit beneath the applied patches"))
	}
	return hash, nil
}

// addPatchAnnotation amends the last commit with a patch annotation unless
// it already carries one.
func (w *WorkingRepo) addPatchAnnotation(ctx context.Context, patchName string) error {
	const op errors.Op = "workrepo.addPatchAnnotation"
	_, msg, found, err := w.git.LogEntry(ctx, "", 0)
	if err != nil {
		return errors.E(op, err)
	}
	if !found {
		return errors.E(op, w.git.Path, errors.Internal,
			fmt.Errorf("no commit to annotate"))
	}
	if _, ok := annotation.Patch(msg); ok {
		return nil
	}
	msg = annotation.Append(msg, annotation.PatchKey, patchName)
	if err := w.git.CommitAmend(ctx, msg); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// createPatches exports every commit after since as a patch file and
// returns the generated filenames plus the insertion parent: the patch
// annotation of the since commit itself, when it has one.
func (w *WorkingRepo) createPatches(ctx context.Context, since string) (filenames []string, parentPatchName string, err error) {
	const op errors.Op = "workrepo.createPatches"
	filenames, err = w.git.FormatPatch(ctx, since)
	if err != nil {
		return nil, "", errors.E(op, err)
	}
	_, msg, found, err := w.git.LogEntry(ctx, since, 0)
	if err != nil {
		return nil, "", errors.E(op, err)
	}
	if !found {
		return nil, "", errors.E(op, errors.InvalidParam,
			fmt.Errorf("no commit at %q", since))
	}
	parentPatchName, _ = annotation.Patch(msg)
	return filenames, parentPatchName, nil
}

// storePatchFiles moves freshly exported patch files into the patch
// repository under their patch names and registers them in the series. The
// patch repository is staged but not committed.
func (w *WorkingRepo) storePatchFiles(ctx context.Context, pr *patchrepo.PatchRepo, patchNames, filenames []string, parentPatchName string) error {
	const op errors.Op = "workrepo.storePatchFiles"
	if len(patchNames) != len(filenames) {
		return errors.E(op, errors.Internal,
			fmt.Errorf("%d patch names for %d files", len(patchNames), len(filenames)))
	}
	for i, patchName := range patchNames {
		dest := filepath.Join(pr.Path().String(), filepath.FromSlash(patchName))
		if dir := filepath.Dir(dest); dir != pr.Path().String() {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.E(op, errors.IO, err)
			}
		}
		src := filepath.Join(w.git.Path.String(), filenames[i])
		if err := os.Rename(src, dest); err != nil {
			return errors.E(op, errors.IO, err)
		}
	}
	if err := pr.AddPatches(ctx, patchNames, parentPatchName); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// commitToPatchRepo commits the staged patch repository changes, recording
// the upstream commit the working repo is based on.
func (w *WorkingRepo) commitToPatchRepo(ctx context.Context, pr *patchrepo.PatchRepo, msg string) error {
	const op errors.Op = "workrepo.commitToPatchRepo"
	basedOn, err := w.lastUpstreamHash(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	msg = annotation.Append(msg, annotation.BasedOnKey, basedOn)
	if err := pr.Commit(ctx, msg); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// finishConflict ends the in-progress mailbox session with the given
// method and clears the conflict marker, returning the blocked patch's
// name.
func (w *WorkingRepo) finishConflict(ctx context.Context, method func(context.Context) error) (string, error) {
	const op errors.Op = "workrepo.finishConflict"
	gitDir, err := w.git.GitDir(ctx)
	if err != nil {
		return "", errors.E(op, err)
	}
	state, err := conflict.Load(gitDir)
	if err != nil {
		return "", errors.E(op, err)
	}
	if !state.Conflicted {
		return "", errors.E(op, w.git.Path, errors.PathNotFound,
			fmt.Errorf("no restore in progress"))
	}
	if err := method(ctx); err != nil {
		return "", errors.E(op, err)
	}
	patchName, err := conflict.Clear(gitDir)
	if err != nil {
		return "", errors.E(op, err)
	}
	return patchName, nil
}

// requireClean fails with UncommittedChanges when the working tree is
// dirty.
func (w *WorkingRepo) requireClean(ctx context.Context) error {
	const op errors.Op = "workrepo.requireClean"
	dirty, err := w.git.UncommittedChanges(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if dirty {
		return errors.E(op, w.git.Path, errors.UncommittedChanges)
	}
	return nil
}
