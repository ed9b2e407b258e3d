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

// Package cmdrestore contains the restore command.
package cmdrestore

import (
	"context"

	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "restore",
		Short: "Apply the patch series to the working repository",
		Long: `Apply every series patch not yet present on the working branch, in order,
one commit per patch. A conflicting patch stops the run; fix it and use
resolve, skip or abort to continue.`,
		Args:         cobra.NoArgs,
		RunE:         r.runE,
		SilenceUsage: true,
	}
	c.Flags().BoolVar(&r.noThreeWay, "no-three-way", false,
		"apply patches without falling back to a three-way merge")
	r.Command = c
	return r
}

// NewCommand returns a restore command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx        context.Context
	Command    *cobra.Command
	noThreeWay bool
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	w, err := runner.OpenWorkingRepo()
	if err != nil {
		return err
	}
	return w.Restore(r.ctx, !r.noThreeWay)
}
