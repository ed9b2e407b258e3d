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

// Package cmdlink contains the link command.
package cmdlink

import (
	"context"

	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "link PATCH_REPO",
		Short: "Link the working repository to a patch repository",
		Long: `Associate the working repository at the current directory with the patch
repository at PATCH_REPO. The association is stored in the repository-local
git config, so it survives across sessions but never leaks into other
clones.`,
		Args:         cobra.ExactArgs(1),
		RunE:         r.runE,
		SilenceUsage: true,
	}
	r.Command = c
	return r
}

// NewCommand returns a link command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	w, err := runner.OpenWorkingRepo()
	if err != nil {
		return err
	}
	return w.Link(r.ctx, args[0])
}
