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

// Package runner contains cross-cutting helpers for command execution.
package runner

import (
	"context"
	"fmt"
	"os"

	goerrors "github.com/go-errors/errors"
	"github.com/plydev/ply/internal/errors"
	"github.com/plydev/ply/internal/patchrepo"
	"github.com/plydev/ply/internal/workrepo"
	"github.com/spf13/cobra"
)

// ExitOnError if true, will cause commands to call os.Exit instead of
// returning an error. Used for skipping printing usage on failure.
var ExitOnError bool

// StackOnError if true, will print a stack trace on failure.
var StackOnError bool

// HandleError converts an error into an exit code or a returned error
// depending on ExitOnError. With StackOnError set, errors carrying a stack
// trace print it to stderr first.
func HandleError(c *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if StackOnError {
		if err, ok := err.(*goerrors.Error); ok {
			fmt.Fprintf(os.Stderr, "%s", err.Stack())
		}
	}

	if ExitOnError {
		fmt.Fprintf(c.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(1)
	}
	return err
}

// OpenWorkingRepo opens the working repository at the current directory.
func OpenWorkingRepo() (*workrepo.WorkingRepo, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return workrepo.Open(dir)
}

// OpenPatchRepo resolves the patch repository a command should operate on:
// the one linked to the working repository at the current directory, falling
// back to treating the current directory itself as the patch repository when
// no link is configured.
func OpenPatchRepo(ctx context.Context) (*patchrepo.PatchRepo, error) {
	w, err := OpenWorkingRepo()
	if err != nil {
		return nil, err
	}
	pr, err := w.PatchRepo(ctx)
	if err == nil {
		return pr, nil
	}
	if !errors.IsKind(err, errors.NoLinkedPatchRepo) {
		return nil, err
	}
	return patchrepo.Open(w.Path().String())
}
