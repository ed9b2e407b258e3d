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

// Package series reads and mutates the ordered series manifest that defines
// patch application order. The manifest is plain text, one patch name per
// line; a line starting with `-i ` includes a nested manifest whose entries
// are expanded in place, prefixed with the nested manifest's directory.
package series

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/plydev/ply/internal/errors"
	"github.com/xlab/treeprint"
)

// FileName is the name of the series manifest inside a patch repository.
const FileName = "series"

const includePrefix = "-i "

// Parse reads the manifest entries without expanding includes. Blank lines
// are skipped; include directives are returned verbatim.
func Parse(r io.Reader) ([]string, error) {
	const op errors.Op = "series.Parse"
	var entries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return entries, nil
}

// Read returns the fully flattened series for the manifest at
// root/relPath. Include directives are expanded depth-first; every entry a
// nested manifest contributes is prefixed with the directory of that
// manifest. Include paths are interpreted relative to root.
func Read(root, relPath string) ([]string, error) {
	const op errors.Op = "series.Read"
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, errors.E(op, errors.IO,
			fmt.Errorf("reading series manifest %q: %w", relPath, err))
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, errors.E(op, err)
	}

	var names []string
	for _, entry := range entries {
		if !strings.HasPrefix(entry, includePrefix) {
			names = append(names, entry)
			continue
		}
		childRel := strings.TrimSpace(strings.TrimPrefix(entry, includePrefix))
		children, err := Read(root, childRel)
		if err != nil {
			return nil, errors.E(op, err)
		}
		dir := path.Dir(childRel)
		for _, child := range children {
			if dir != "." {
				child = path.Join(dir, child)
			}
			names = append(names, child)
		}
	}
	return names, nil
}

// Mutate applies a single read-modify-write transaction to the manifest at
// manifestPath: the entries are parsed into a list, fn mutates the list in
// place, and the whole list is rewritten. When fn returns an error the
// manifest is left untouched, so a partial mutation is never observable.
//
// Mutate operates on the flat entries of one manifest; include directives
// are ordinary entries here and are never expanded.
func Mutate(manifestPath string, fn func(entries *[]string) error) error {
	const op errors.Op = "series.Mutate"
	f, err := os.Open(manifestPath)
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	entries, err := Parse(f)
	f.Close()
	if err != nil {
		return errors.E(op, err)
	}

	if err := fn(&entries); err != nil {
		return err
	}

	b := new(strings.Builder)
	for _, entry := range entries {
		b.WriteString(entry)
		b.WriteString("\n")
	}
	if err := os.WriteFile(manifestPath, []byte(b.String()), 0644); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// Tree renders the manifest at root/relPath as a tree, keeping the include
// structure visible instead of flattening it.
func Tree(root, relPath string) (string, error) {
	const op errors.Op = "series.Tree"
	tree := treeprint.New()
	tree.SetValue(relPath)
	if err := addBranches(tree, root, relPath); err != nil {
		return "", errors.E(op, err)
	}
	return tree.String(), nil
}

func addBranches(tree treeprint.Tree, root, relPath string) error {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return errors.E(errors.IO,
			fmt.Errorf("reading series manifest %q: %w", relPath, err))
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry, includePrefix) {
			tree.AddNode(entry)
			continue
		}
		childRel := strings.TrimSpace(strings.TrimPrefix(entry, includePrefix))
		branch := tree.AddBranch(childRel)
		if err := addBranches(branch, root, childRel); err != nil {
			return err
		}
	}
	return nil
}
