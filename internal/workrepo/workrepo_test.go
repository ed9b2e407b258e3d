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

package workrepo_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/plydev/ply/internal/errors"
	"github.com/plydev/ply/internal/patchrepo"
	"github.com/plydev/ply/internal/printer/fake"
	"github.com/plydev/ply/internal/testutil"
	"github.com/plydev/ply/internal/workrepo"
	"github.com/stretchr/testify/assert"
)

// fixture is a linked pair of repositories: a working repo with a single
// upstream base commit and an initialized, empty patch repo.
type fixture struct {
	ctx   context.Context
	work  *testutil.TestRepo
	patch *testutil.TestRepo
	wr    *workrepo.WorkingRepo
	pr    *patchrepo.PatchRepo
	base  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := fake.CtxWithDefaultPrinter()

	work := testutil.NewRepo(t)
	work.CommitFile("f", "one\n", "Base commit")

	patch := testutil.NewRepo(t)
	pr, err := patchrepo.Open(patch.Dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	if !assert.NoError(t, pr.Initialize(ctx)) {
		t.FailNow()
	}

	wr, err := workrepo.Open(work.Dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	if !assert.NoError(t, wr.Link(ctx, patch.Dir)) {
		t.FailNow()
	}

	return &fixture{
		ctx:   ctx,
		work:  work,
		patch: patch,
		wr:    wr,
		pr:    pr,
		base:  work.Head(),
	}
}

// saveOne commits a change to f and saves it, yielding the one-patch series
// ["Set-two.patch"].
func (f *fixture) saveOne(t *testing.T) {
	t.Helper()
	f.work.CommitFile("f", "two\n", "Set two")
	if !assert.NoError(t, f.wr.Save(f.ctx, f.base, "")) {
		t.FailNow()
	}
}

func TestLinkUnlink(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	work := testutil.NewRepo(t)
	work.CommitFile("f", "one\n", "Base commit")
	wr, err := workrepo.Open(work.Dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	_, err = wr.PatchRepo(ctx)
	assert.True(t, errors.IsKind(err, errors.NoLinkedPatchRepo))

	err = wr.Unlink(ctx)
	assert.True(t, errors.IsKind(err, errors.NoLinkedPatchRepo))

	patch := testutil.NewRepo(t)
	assert.NoError(t, wr.Link(ctx, patch.Dir))

	path, found, err := wr.PatchRepoPath(ctx)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, patch.Dir, path)

	err = wr.Link(ctx, patch.Dir)
	assert.True(t, errors.IsKind(err, errors.AlreadyLinkedToPatchRepo))

	assert.NoError(t, wr.Unlink(ctx))
	_, found, err = wr.PatchRepoPath(ctx)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestSave(t *testing.T) {
	f := setup(t)
	f.saveOne(t)

	// The working branch tip is the same change, now annotated.
	assert.Equal(t, "two\n", f.work.ReadFile("f"))
	assert.Contains(t, f.work.Message(0), "Set two")
	assert.Contains(t, f.work.Message(0), "Ply-Patch: Set-two.patch")

	applied, err := f.wr.AppliedPatches(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Set-two.patch"}, applied)

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusAllPatchesApplied, status)

	// The patch repo gained the file, the series entry and one commit
	// recording the upstream base.
	assert.True(t, f.patch.Exists("Set-two.patch"))
	names, err := f.pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"Set-two.patch"}, names)
	assert.Equal(t, 2, f.patch.CommitCount())
	assert.Contains(t, f.patch.Message(0), "Adding Set-two.patch")
	assert.Contains(t, f.patch.Message(0), "Ply-Based-On: ")
}

func TestSave_multipleCommits(t *testing.T) {
	f := setup(t)
	f.work.CommitFile("f", "two\n", "Set two")
	f.work.CommitFile("g", "hi\n", "Add greeting")
	assert.NoError(t, f.wr.Save(f.ctx, f.base, ""))

	names, err := f.pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"Set-two.patch", "Add-greeting.patch"}, names)
	assert.Contains(t, f.patch.Message(0), "Adding 2 patches")

	// Newest first.
	applied, err := f.wr.AppliedPatches(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Add-greeting.patch", "Set-two.patch"}, applied)
}

func TestSave_prefix(t *testing.T) {
	f := setup(t)
	f.work.CommitFile("f", "two\n", "Set two")
	assert.NoError(t, f.wr.Save(f.ctx, f.base, "feature"))

	assert.True(t, f.patch.Exists("feature/Set-two.patch"))
	names, err := f.pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"feature/Set-two.patch"}, names)
	assert.Contains(t, f.work.Message(0), "Ply-Patch: feature/Set-two.patch")
}

func TestSave_refreshKeepsPatchName(t *testing.T) {
	f := setup(t)
	f.saveOne(t)

	// Amend the applied patch commit and re-save it; the existing patch
	// name wins over a freshly derived one.
	f.work.WriteFile("f", "two plus\n")
	f.work.Git("commit", "--quiet", "--all", "--amend", "--no-edit")
	assert.NoError(t, f.wr.Save(f.ctx, f.base, ""))

	names, err := f.pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"Set-two.patch"}, names)
	assert.Contains(t, f.patch.ReadFile("Set-two.patch"), "two plus")

	// With an annotated tip the recorded base is the true upstream commit.
	assert.Contains(t, f.patch.Message(0), "Ply-Based-On: "+f.base)
}

func TestSave_guards(t *testing.T) {
	f := setup(t)

	err := f.wr.Save(f.ctx, "one..two", "")
	assert.True(t, errors.IsKind(err, errors.InvalidParam), "unexpected error: %v", err)

	err = f.wr.Save(f.ctx, "HEAD", "")
	assert.True(t, errors.IsKind(err, errors.InvalidParam), "unexpected error: %v", err)

	f.work.WriteFile("f", "dirty\n")
	err = f.wr.Save(f.ctx, f.base, "")
	assert.True(t, errors.IsKind(err, errors.UncommittedChanges), "unexpected error: %v", err)
}

func TestRollbackAndRestore(t *testing.T) {
	f := setup(t)
	f.saveOne(t)

	assert.NoError(t, f.wr.Rollback(f.ctx))
	assert.Equal(t, f.base, f.work.Head())
	assert.Equal(t, "one\n", f.work.ReadFile("f"))

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusNoPatchesApplied, status)

	assert.NoError(t, f.wr.Restore(f.ctx, true))
	assert.Equal(t, "two\n", f.work.ReadFile("f"))
	assert.Contains(t, f.work.Message(0), "Ply-Patch: Set-two.patch")

	status, err = f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusAllPatchesApplied, status)
}

func TestRollback_noPatchesApplied(t *testing.T) {
	f := setup(t)

	// With nothing applied the upstream base is HEAD itself, so rollback
	// succeeds without moving anything.
	assert.NoError(t, f.wr.Rollback(f.ctx))
	assert.Equal(t, f.base, f.work.Head())

	// Same right after a previous rollback already removed the patches.
	f.saveOne(t)
	assert.NoError(t, f.wr.Rollback(f.ctx))
	assert.NoError(t, f.wr.Rollback(f.ctx))
	assert.Equal(t, f.base, f.work.Head())
	assert.Equal(t, "one\n", f.work.ReadFile("f"))
}

func TestRestore_ontoClonedReplica(t *testing.T) {
	f := setup(t)
	f.saveOne(t)

	// A replica of the working repo keeps the patch-repo link through the
	// copied local config; rolled back to the base it is the "fresh
	// checkout" the patches get reapplied onto.
	replica := f.work.Clone()
	wr, err := workrepo.Open(replica.Dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	assert.NoError(t, wr.Rollback(f.ctx))
	assert.Equal(t, f.base, replica.Head())
	assert.Equal(t, "one\n", replica.ReadFile("f"))

	assert.NoError(t, wr.Restore(f.ctx, true))
	assert.Equal(t, "two\n", replica.ReadFile("f"))
	assert.Contains(t, replica.Message(0), "Ply-Patch: Set-two.patch")

	// The original working repo is untouched by the replica's restore.
	assert.Contains(t, f.work.Message(0), "Ply-Patch: Set-two.patch")
	assert.Equal(t, "two\n", f.work.ReadFile("f"))
}

// conflicted saves a patch, rolls back and diverges upstream so the next
// restore stops on a conflict.
func conflicted(t *testing.T) *fixture {
	t.Helper()
	f := setup(t)
	f.saveOne(t)
	if !assert.NoError(t, f.wr.Rollback(f.ctx)) {
		t.FailNow()
	}
	f.work.CommitFile("f", "three\n", "Diverged upstream")

	err := f.wr.Restore(f.ctx, true)
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.True(t, errors.IsKind(err, errors.PatchDidNotApplyCleanly),
		"unexpected error: %v", err)
	return f
}

func TestRestore_conflict(t *testing.T) {
	f := conflicted(t)

	// The blocked patch name is persisted in the marker file.
	assert.Equal(t, "Set-two.patch\n", f.work.ReadFile(".git/ply-conflict"))

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusRestoreInProgress, status)
}

func TestResolve(t *testing.T) {
	f := conflicted(t)

	// Resolve the conflict by hand and stage the result.
	f.work.WriteFile("f", "two and three\n")
	f.work.Git("add", "--", "f")
	assert.NoError(t, f.wr.Resolve(f.ctx))

	assert.Equal(t, "two and three\n", f.work.ReadFile("f"))
	assert.Contains(t, f.work.Message(0), "Set two")
	assert.Contains(t, f.work.Message(0), "Ply-Patch: Set-two.patch")
	assert.False(t, f.work.Exists(".git/ply-conflict"))

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusAllPatchesApplied, status)

	// The regenerated patch file was refreshed and committed once.
	assert.Contains(t, f.patch.ReadFile("Set-two.patch"), "two and three")
	assert.Equal(t, 3, f.patch.CommitCount())
	assert.Contains(t, f.patch.Message(0), "Refreshing patches")
}

func TestSkip(t *testing.T) {
	f := conflicted(t)

	assert.NoError(t, f.wr.Skip(f.ctx))

	// The patch is gone for good and upstream's version of f survives.
	assert.Equal(t, "three\n", f.work.ReadFile("f"))
	assert.False(t, f.work.Exists(".git/ply-conflict"))
	assert.False(t, f.patch.Exists("Set-two.patch"))
	names, err := f.pr.Series()
	assert.NoError(t, err)
	assert.Empty(t, names)

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusNoPatchesApplied, status)
}

func TestAbort(t *testing.T) {
	f := conflicted(t)

	// Leave some half-done resolution behind; abort discards it.
	f.work.WriteFile("f", "half resolved\n")
	assert.NoError(t, f.wr.Abort(f.ctx))

	assert.Equal(t, "three\n", f.work.ReadFile("f"))
	assert.False(t, f.work.Exists(".git/ply-conflict"))

	// The patch repo still carries the patch for a later attempt.
	assert.True(t, f.patch.Exists("Set-two.patch"))

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusNoPatchesApplied, status)
}

func TestResolveWithoutConflict(t *testing.T) {
	f := setup(t)
	err := f.wr.Resolve(f.ctx)
	assert.True(t, errors.IsKind(err, errors.PathNotFound), "unexpected error: %v", err)
}

func TestRestore_upstreamedPatchIsRemoved(t *testing.T) {
	f := setup(t)
	f.saveOne(t)
	assert.NoError(t, f.wr.Rollback(f.ctx))

	// Upstream lands the exact same change.
	f.work.CommitFile("f", "two\n", "Equivalent upstream change")

	var stderr bytes.Buffer
	ctx := fake.CtxWithPrinter(io.Discard, &stderr)
	assert.NoError(t, f.wr.Restore(ctx, true))

	// The warning names the patch repo the patch was removed from.
	assert.Contains(t, stderr.String(), `Repo "`)
	assert.Contains(t, stderr.String(), "Set-two.patch")

	assert.False(t, f.patch.Exists("Set-two.patch"))
	names, err := f.pr.Series()
	assert.NoError(t, err)
	assert.Empty(t, names)
	assert.Contains(t, f.patch.Message(0), "Refreshing patches")

	status, err := f.wr.Status(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, workrepo.StatusNoPatchesApplied, status)
}

func TestThreePatchConflictRun(t *testing.T) {
	f := setup(t)
	f.work.CommitFile("a", "1\n", "Add a")
	f.work.CommitFile("f", "two\n", "Set two")
	f.work.CommitFile("b", "2\n", "Add b")
	assert.NoError(t, f.wr.Save(f.ctx, f.base, ""))

	assert.NoError(t, f.wr.Rollback(f.ctx))
	f.work.CommitFile("f", "three\n", "Diverged upstream")

	// The first patch applies, the second conflicts, the third never runs.
	err := f.wr.Restore(f.ctx, true)
	assert.True(t, errors.IsKind(err, errors.PatchDidNotApplyCleanly),
		"unexpected error: %v", err)
	assert.Equal(t, "Set-two.patch\n", f.work.ReadFile(".git/ply-conflict"))
	assert.Contains(t, f.work.Message(0), "Ply-Patch: Add-a.patch")
	assert.False(t, f.work.Exists("b"))

	// Resolving picks the run back up and applies the rest.
	f.work.WriteFile("f", "two and three\n")
	f.work.Git("add", "--", "f")
	assert.NoError(t, f.wr.Resolve(f.ctx))

	assert.True(t, f.work.Exists("b"))
	applied, err := f.wr.AppliedPatches(f.ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Add-b.patch", "Set-two.patch", "Add-a.patch"}, applied)
}

func TestCheckPatchRepo(t *testing.T) {
	f := setup(t)
	f.saveOne(t)

	result, err := f.wr.CheckPatchRepo(f.ctx)
	assert.NoError(t, err)
	assert.True(t, result.OK)

	// A stray file shows up as missing from the series.
	f.patch.WriteFile("stray.patch", "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-x\n+y\n")
	result, err = f.wr.CheckPatchRepo(f.ctx)
	assert.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, []string{"stray.patch"}, result.MissingFromSeries)
}

func TestAppliedPatches_noUpstreamBase(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	work := testutil.NewRepo(t)
	work.CommitFile("f", "one\n", "Rootless\n\nPly-Patch: rootless.patch")
	wr, err := workrepo.Open(work.Dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	_, err = wr.AppliedPatches(ctx)
	assert.True(t, errors.IsKind(err, errors.NoUpstreamBase), "unexpected error: %v", err)
}
