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

// Package conflict persists the restore-in-progress state of a working
// repository. The state is a single marker file inside the repository's git
// directory naming the patch blocked on manual resolution; its presence is
// the sole signal that a restore was interrupted, so it must survive the
// process and be written atomically.
package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plydev/ply/internal/errors"
)

const markerName = "ply-conflict"

// State is the durable conflict state of a working repository.
type State struct {
	// Conflicted reports whether a restore is blocked on a conflict.
	Conflicted bool

	// Patch is the name of the blocked patch. Empty unless Conflicted.
	Patch string
}

// Path returns the marker file location for a git directory.
func Path(gitDir string) string {
	return filepath.Join(gitDir, markerName)
}

// Load reads the conflict state. A missing marker file means no conflict is
// in progress.
func Load(gitDir string) (State, error) {
	const op errors.Op = "conflict.Load"
	data, err := os.ReadFile(Path(gitDir))
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, errors.E(op, errors.IO, err)
	}
	patch := strings.TrimSpace(string(data))
	if patch == "" {
		return State{}, errors.E(op, errors.Internal,
			fmt.Errorf("conflict marker %s is empty", Path(gitDir)))
	}
	return State{Conflicted: true, Patch: patch}, nil
}

// Save records the name of the patch blocked on a conflict. The marker is
// written to a temporary file and renamed into place so an interrupted
// write can never leave a corrupt marker.
func Save(gitDir, patch string) error {
	const op errors.Op = "conflict.Save"
	tmp, err := os.CreateTemp(gitDir, markerName+".tmp-*")
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	_, err = tmp.WriteString(patch + "\n")
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return errors.E(op, errors.IO, err)
	}
	if err := os.Rename(tmp.Name(), Path(gitDir)); err != nil {
		os.Remove(tmp.Name())
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// Clear removes the marker and returns the name of the patch it recorded.
// A missing marker means resolve/skip/abort was called without a preceding
// conflict and is surfaced as a PathNotFound condition.
func Clear(gitDir string) (string, error) {
	const op errors.Op = "conflict.Clear"
	state, err := Load(gitDir)
	if err != nil {
		return "", errors.E(op, err)
	}
	if !state.Conflicted {
		return "", errors.E(op, errors.PathNotFound,
			fmt.Errorf("no conflict marker at %s", Path(gitDir)))
	}
	if err := os.Remove(Path(gitDir)); err != nil {
		return "", errors.E(op, errors.IO, err)
	}
	return state.Patch, nil
}
