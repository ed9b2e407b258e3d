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

// Package patchrepo manages the git repository holding versioned patch
// files and the series manifest defining their application order.
package patchrepo

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plydev/ply/internal/depgraph"
	"github.com/plydev/ply/internal/errors"
	"github.com/plydev/ply/internal/gitutil"
	"github.com/plydev/ply/internal/series"
	"github.com/plydev/ply/internal/types"
)

// PatchExtension is the file extension of patch blobs on disk.
const PatchExtension = ".patch"

// PatchRepo owns the on-disk set of patch files and the ordered series
// manifest. All mutations go through its methods; callers never edit the
// series or blob files directly.
type PatchRepo struct {
	git *gitutil.Repo
}

// Open returns a PatchRepo for the given directory.
func Open(path string) (*PatchRepo, error) {
	const op errors.Op = "patchrepo.Open"
	git, err := gitutil.NewRepo(path)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &PatchRepo{git: git}, nil
}

// Path returns the absolute path of the patch repository.
func (p *PatchRepo) Path() types.UniquePath {
	return p.git.Path
}

// SeriesPath returns the location of the top-level series manifest.
func (p *PatchRepo) SeriesPath() string {
	return filepath.Join(p.git.Path.String(), series.FileName)
}

// Initialize creates the repository and an empty series manifest,
// committing the manifest as the first commit. Calling it on an
// already-initialized repository is a no-op for the manifest.
func (p *PatchRepo) Initialize(ctx context.Context) error {
	const op errors.Op = "patchrepo.Initialize"
	if err := p.git.Init(ctx); err != nil {
		return errors.E(op, p.git.Path, err)
	}

	if _, err := os.Stat(p.SeriesPath()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.E(op, errors.IO, p.git.Path, err)
	}

	if err := os.WriteFile(p.SeriesPath(), nil, 0644); err != nil {
		return errors.E(op, errors.IO, p.git.Path, err)
	}
	if err := p.git.Add(ctx, series.FileName); err != nil {
		return errors.E(op, err)
	}
	if err := p.git.Commit(ctx, "Ply init"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Series returns the fully flattened, ordered list of patch names,
// expanding recursive inclusion directives.
func (p *PatchRepo) Series() ([]string, error) {
	const op errors.Op = "patchrepo.Series"
	names, err := series.Read(p.git.Path.String(), series.FileName)
	if err != nil {
		return nil, errors.E(op, p.git.Path, err)
	}
	return names, nil
}

// SeriesTree renders the series manifest as a tree, keeping inclusion
// structure visible.
func (p *PatchRepo) SeriesTree() (string, error) {
	const op errors.Op = "patchrepo.SeriesTree"
	out, err := series.Tree(p.git.Path.String(), series.FileName)
	if err != nil {
		return "", errors.E(op, p.git.Path, err)
	}
	return out, nil
}

// PatchNames returns every patch file present on disk, as slash paths
// relative to the repository root. This reflects the filesystem only and is
// used for consistency checking, never for application order.
func (p *PatchRepo) PatchNames() ([]string, error) {
	const op errors.Op = "patchrepo.PatchNames"
	var names []string
	root := p.git.Path.String()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), PatchExtension) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.E(op, errors.IO, p.git.Path, err)
	}
	return names, nil
}

// AddPatches inserts the given names, in order, into the series immediately
// after parentPatchName, or at the very start when parentPatchName is
// empty. Names already present keep their position, so re-insertion is
// idempotent. Every named patch file is staged. The whole insertion is a
// single read-modify-write of the manifest.
func (p *PatchRepo) AddPatches(ctx context.Context, names []string, parentPatchName string) error {
	const op errors.Op = "patchrepo.AddPatches"
	err := series.Mutate(p.SeriesPath(), func(entries *[]string) error {
		base := 0
		if parentPatchName != "" {
			if i := indexOf(*entries, parentPatchName); i >= 0 {
				base = i + 1
			}
		}
		for i, name := range names {
			if indexOf(*entries, name) >= 0 {
				continue
			}
			at := base + i
			if at > len(*entries) {
				at = len(*entries)
			}
			*entries = append((*entries)[:at],
				append([]string{name}, (*entries)[at:]...)...)
		}
		return nil
	})
	if err != nil {
		return errors.E(op, p.git.Path, err)
	}

	for _, name := range names {
		if err := p.git.Add(ctx, name); err != nil {
			return errors.E(op, errors.Patch(name), err)
		}
	}
	if err := p.git.Add(ctx, series.FileName); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// RemovePatch deletes the patch file and removes its entry from the series
// manifest. A name absent from the series is an error, never a silent
// no-op.
func (p *PatchRepo) RemovePatch(ctx context.Context, name string) error {
	const op errors.Op = "patchrepo.RemovePatch"
	err := series.Mutate(p.SeriesPath(), func(entries *[]string) error {
		i := indexOf(*entries, name)
		if i < 0 {
			return errors.E(op, p.git.Path, errors.Patch(name), errors.PatchNotInSeries)
		}
		*entries = append((*entries)[:i], (*entries)[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	if err := p.git.Remove(ctx, name); err != nil {
		return errors.E(op, errors.Patch(name), err)
	}
	if err := p.git.Add(ctx, series.FileName); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// CheckResult is the outcome of a patch repository consistency check.
type CheckResult struct {
	// OK reports whether the series and the on-disk patch files agree.
	OK bool

	// MissingFromDisk lists series entries with no corresponding patch
	// file.
	MissingFromDisk []string

	// MissingFromSeries lists patch files with no series entry.
	MissingFromSeries []string
}

// Check verifies that the set of on-disk patch files exactly matches the
// flattened series. It is a diagnostic; nothing else enforces this
// invariant automatically.
func (p *PatchRepo) Check() (CheckResult, error) {
	const op errors.Op = "patchrepo.Check"
	seriesNames, err := p.Series()
	if err != nil {
		return CheckResult{}, errors.E(op, err)
	}
	patchNames, err := p.PatchNames()
	if err != nil {
		return CheckResult{}, errors.E(op, err)
	}

	inSeries := make(map[string]bool, len(seriesNames))
	for _, name := range seriesNames {
		inSeries[name] = true
	}
	onDisk := make(map[string]bool, len(patchNames))
	for _, name := range patchNames {
		onDisk[name] = true
	}

	result := CheckResult{}
	for _, name := range seriesNames {
		if !onDisk[name] {
			result.MissingFromDisk = append(result.MissingFromDisk, name)
		}
	}
	for _, name := range patchNames {
		if !inSeries[name] {
			result.MissingFromSeries = append(result.MissingFromSeries, name)
		}
	}
	sort.Strings(result.MissingFromDisk)
	sort.Strings(result.MissingFromSeries)
	result.OK = len(result.MissingFromDisk) == 0 && len(result.MissingFromSeries) == 0
	return result, nil
}

// PatchDependencies builds the file-overlap dependency graph for the
// current series.
func (p *PatchRepo) PatchDependencies() (depgraph.Graph, error) {
	const op errors.Op = "patchrepo.PatchDependencies"
	seriesNames, err := p.Series()
	if err != nil {
		return nil, errors.E(op, err)
	}
	graph, err := depgraph.Build(p.git.Path.String(), seriesNames)
	if err != nil {
		return nil, errors.E(op, p.git.Path, err)
	}
	return graph, nil
}

// PatchDependencyDotGraph renders the dependency graph in DOT format.
func (p *PatchRepo) PatchDependencyDotGraph() (string, error) {
	graph, err := p.PatchDependencies()
	if err != nil {
		return "", err
	}
	return graph.Dot(), nil
}

// Commit commits the staged patch repository changes.
func (p *PatchRepo) Commit(ctx context.Context, msg string) error {
	return p.git.Commit(ctx, msg)
}

// UncommittedChanges reports whether the patch repository working tree is
// dirty.
func (p *PatchRepo) UncommittedChanges(ctx context.Context) (bool, error) {
	return p.git.UncommittedChanges(ctx)
}

func indexOf(entries []string, name string) int {
	for i, entry := range entries {
		if entry == name {
			return i
		}
	}
	return -1
}
