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

// Package cmdabort contains the abort command.
package cmdabort

import (
	"context"

	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "abort",
		Short: "Abort the conflicted restore",
		Long: `Give up on the patch blocked on a conflict and discard any partial
resolution. Patches applied earlier in the same restore run stay applied;
the patch repository keeps the patch for a later attempt.`,
		Args:         cobra.NoArgs,
		RunE:         r.runE,
		SilenceUsage: true,
	}
	r.Command = c
	return r
}

// NewCommand returns an abort command instance.
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
	return w.Abort(r.ctx)
}
