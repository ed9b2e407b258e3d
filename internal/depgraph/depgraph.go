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

// Package depgraph derives the file-overlap dependency graph of a patch
// series. This is not a code-level call graph: an edge between two patches
// means both touch the same file, with the parent being the nearest earlier
// patch in series order. The graph is useful for breaking a large series
// into smaller independent ones.
package depgraph

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plydev/ply/internal/errors"
)

// Edge is a directed dependency between two patches.
type Edge struct {
	Dependent string
	Parent    string
}

// FileSet is the set of filenames labeling an edge.
type FileSet map[string]struct{}

// List returns the filenames in sorted order.
func (s FileSet) List() []string {
	files := make([]string, 0, len(s))
	for f := range s {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Graph maps each edge to the set of files both of its patches touch.
type Graph map[Edge]FileSet

// ChangedFiles returns the set of files the patch at path modifies, parsed
// from the unified-diff file headers. The null-device sentinel used for
// added and deleted files is ignored.
func ChangedFiles(path string) (FileSet, error) {
	const op errors.Op = "depgraph.ChangedFiles"
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	defer f.Close()

	changed := FileSet{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var filename string
		switch {
		case strings.HasPrefix(line, "--- a/"):
			filename = strings.TrimPrefix(line, "--- a/")
		case strings.HasPrefix(line, "+++ b/"):
			filename = strings.TrimPrefix(line, "+++ b/")
		default:
			continue
		}
		if strings.HasPrefix(filename, "/dev/null") {
			continue
		}
		changed[filename] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return changed, nil
}

// changesByFile returns, for every file, the ordered list of series patches
// that touch it.
func changesByFile(root string, seriesNames []string) (map[string][]string, error) {
	fileChanges := make(map[string][]string)
	for _, name := range seriesNames {
		changed, err := ChangedFiles(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return nil, err
		}
		for filename := range changed {
			fileChanges[filename] = append(fileChanges[filename], name)
		}
	}
	return fileChanges, nil
}

// Build constructs the dependency graph for the flattened series rooted at
// root. It runs in two passes: first file to ordered touching patches, then
// every consecutive pair of patches touching a file becomes an edge labeled
// with that file. Labels accumulate when several files link the same pair.
func Build(root string, seriesNames []string) (Graph, error) {
	const op errors.Op = "depgraph.Build"
	fileChanges, err := changesByFile(root, seriesNames)
	if err != nil {
		return nil, errors.E(op, err)
	}

	graph := Graph{}
	for filename, names := range fileChanges {
		parent := ""
		for _, dependent := range names {
			if parent != "" {
				edge := Edge{Dependent: dependent, Parent: parent}
				if graph[edge] == nil {
					graph[edge] = FileSet{}
				}
				graph[edge][filename] = struct{}{}
			}
			parent = dependent
		}
	}
	return graph, nil
}

// Dot renders the graph in the DOT directed-graph format, one edge per
// line. Edges are emitted in sorted order so the output is deterministic.
func (g Graph) Dot() string {
	edges := make([]Edge, 0, len(g))
	for edge := range g {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Dependent != edges[j].Dependent {
			return edges[i].Dependent < edges[j].Dependent
		}
		return edges[i].Parent < edges[j].Parent
	})

	lines := []string{"digraph patchdeps {"}
	for _, edge := range edges {
		label := strings.Join(g[edge].List(), ", ")
		lines = append(lines, fmt.Sprintf("%q -> %q [label=%q];",
			edge.Dependent, edge.Parent, label))
	}
	lines = append(lines, "}")
	return strings.Join(lines, "\n")
}
