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

package patchrepo_test

import (
	"strings"
	"testing"

	"github.com/plydev/ply/internal/errors"
	"github.com/plydev/ply/internal/patchrepo"
	"github.com/plydev/ply/internal/printer/fake"
	"github.com/plydev/ply/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// newPatchRepo returns an initialized patch repository inside a test git
// repository.
func newPatchRepo(t *testing.T) (*patchrepo.PatchRepo, *testutil.TestRepo) {
	t.Helper()
	ctx := fake.CtxWithDefaultPrinter()
	g := testutil.NewRepo(t)
	pr, err := patchrepo.Open(g.Dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	if !assert.NoError(t, pr.Initialize(ctx)) {
		t.FailNow()
	}
	return pr, g
}

// addPatch fabricates a patch file and inserts it after parent.
func addPatch(t *testing.T, pr *patchrepo.PatchRepo, g *testutil.TestRepo, name, parent string) {
	t.Helper()
	g.WriteFile(name, "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-x\n+y\n")
	if !assert.NoError(t, pr.AddPatches(fake.CtxWithDefaultPrinter(), []string{name}, parent)) {
		t.FailNow()
	}
}

func TestInitialize(t *testing.T) {
	pr, g := newPatchRepo(t)

	assert.True(t, g.Exists("series"))
	assert.Equal(t, 1, g.CommitCount())
	assert.Contains(t, g.Message(0), "Ply init")

	// Initializing again leaves the manifest and history alone.
	assert.NoError(t, pr.Initialize(fake.CtxWithDefaultPrinter()))
	assert.Equal(t, 1, g.CommitCount())

	names, err := pr.Series()
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestAddPatches(t *testing.T) {
	testCases := map[string]struct {
		existing []string
		names    []string
		parent   string
		expected []string
	}{
		"append to empty series": {
			names:    []string{"a.patch"},
			expected: []string{"a.patch"},
		},
		"insert after parent": {
			existing: []string{"a.patch", "c.patch"},
			names:    []string{"b.patch"},
			parent:   "a.patch",
			expected: []string{"a.patch", "b.patch", "c.patch"},
		},
		"insert run keeps given order": {
			existing: []string{"a.patch", "d.patch"},
			names:    []string{"b.patch", "c.patch"},
			parent:   "a.patch",
			expected: []string{"a.patch", "b.patch", "c.patch", "d.patch"},
		},
		"no parent inserts at start": {
			existing: []string{"b.patch"},
			names:    []string{"a.patch"},
			expected: []string{"a.patch", "b.patch"},
		},
		"absent parent inserts at start": {
			existing: []string{"b.patch"},
			names:    []string{"a.patch"},
			parent:   "never-saved.patch",
			expected: []string{"a.patch", "b.patch"},
		},
		"present names keep their position": {
			existing: []string{"a.patch", "b.patch"},
			names:    []string{"b.patch", "c.patch"},
			parent:   "a.patch",
			expected: []string{"a.patch", "b.patch", "c.patch"},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			ctx := fake.CtxWithDefaultPrinter()
			pr, g := newPatchRepo(t)
			for _, name := range tc.existing {
				addPatch(t, pr, g, name, "")
			}
			// Rebuild the wanted starting order; addPatch prepends.
			g.WriteFile("series", strings.Join(tc.existing, "\n")+"\n")

			for _, name := range tc.names {
				g.WriteFile(name, "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-x\n+y\n")
			}
			assert.NoError(t, pr.AddPatches(ctx, tc.names, tc.parent))

			names, err := pr.Series()
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, names)
		})
	}
}

func TestAddPatches_idempotent(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	pr, g := newPatchRepo(t)
	addPatch(t, pr, g, "a.patch", "")
	addPatch(t, pr, g, "b.patch", "a.patch")

	assert.NoError(t, pr.AddPatches(ctx, []string{"a.patch", "b.patch"}, ""))

	names, err := pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a.patch", "b.patch"}, names)
}

func TestRemovePatch(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	pr, g := newPatchRepo(t)
	addPatch(t, pr, g, "a.patch", "")
	addPatch(t, pr, g, "b.patch", "a.patch")
	assert.NoError(t, pr.Commit(ctx, "Add patches"))

	assert.NoError(t, pr.RemovePatch(ctx, "a.patch"))

	names, err := pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"b.patch"}, names)
	assert.False(t, g.Exists("a.patch"))
}

func TestRemovePatch_notInSeries(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	pr, g := newPatchRepo(t)
	addPatch(t, pr, g, "a.patch", "")

	err := pr.RemovePatch(ctx, "missing.patch")
	if assert.Error(t, err) {
		assert.True(t, errors.IsKind(err, errors.PatchNotInSeries),
			"unexpected error: %v", err)
	}

	// The manifest is untouched on failure.
	names, seriesErr := pr.Series()
	assert.NoError(t, seriesErr)
	assert.Equal(t, []string{"a.patch"}, names)
	assert.True(t, g.Exists("a.patch"))
}

func TestCheck(t *testing.T) {
	testCases := map[string]struct {
		series            []string
		onDisk            []string
		expectedOK        bool
		missingFromDisk   []string
		missingFromSeries []string
	}{
		"consistent repository": {
			series:     []string{"a.patch", "b.patch"},
			onDisk:     []string{"a.patch", "b.patch"},
			expectedOK: true,
		},
		"series entry without file": {
			series:          []string{"a.patch", "b.patch"},
			onDisk:          []string{"a.patch"},
			missingFromDisk: []string{"b.patch"},
		},
		"file without series entry": {
			series:            []string{"a.patch"},
			onDisk:            []string{"a.patch", "stray.patch"},
			missingFromSeries: []string{"stray.patch"},
		},
		"both sides disagree": {
			series:            []string{"a.patch", "gone.patch"},
			onDisk:            []string{"a.patch", "sub/extra.patch"},
			missingFromDisk:   []string{"gone.patch"},
			missingFromSeries: []string{"sub/extra.patch"},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			pr, g := newPatchRepo(t)
			g.WriteFile("series", strings.Join(tc.series, "\n")+"\n")
			for _, name := range tc.onDisk {
				g.WriteFile(name, "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-x\n+y\n")
			}

			result, err := pr.Check()
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedOK, result.OK)
			assert.Equal(t, tc.missingFromDisk, result.MissingFromDisk)
			assert.Equal(t, tc.missingFromSeries, result.MissingFromSeries)
		})
	}
}

func TestSeries_recursiveInclude(t *testing.T) {
	pr, g := newPatchRepo(t)
	g.WriteFile("series", "a.patch\n-i sub/series\nz.patch\n")
	g.WriteFile("sub/series", "b.patch\nc.patch\n")

	names, err := pr.Series()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a.patch", "sub/b.patch", "sub/c.patch", "z.patch"}, names)
}
