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

// Package cmdstatus contains the status command.
package cmdstatus

import (
	"context"

	"github.com/plydev/ply/internal/printer"
	"github.com/plydev/ply/internal/runner"
	"github.com/plydev/ply/internal/workrepo"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "status",
		Short: "Show the patch state of the working repository",
		Long: `Report whether a restore is blocked on a conflict, and otherwise whether
the branch tip carries applied patches. With --applied, list the applied
patch names, newest first.`,
		Args:         cobra.NoArgs,
		RunE:         r.runE,
		SilenceUsage: true,
	}
	c.Flags().BoolVar(&r.applied, "applied", false,
		"list applied patch names instead of the summary state")
	r.Command = c
	return r
}

// NewCommand returns a status command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
	applied bool
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	w, err := runner.OpenWorkingRepo()
	if err != nil {
		return err
	}
	pc := printer.FromContextOrDie(r.ctx)

	if r.applied {
		names, err := w.AppliedPatches(r.ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			pc.Printf("%s\n", name)
		}
		return nil
	}

	status, err := w.Status(r.ctx)
	if err != nil {
		return err
	}
	pc.Printf("%s\n", status)
	if status == workrepo.StatusRestoreInProgress {
		pc.Printf("Fix the conflict, stage the result, then run one of:\n")
		pc.Printf("  %s resolve   store the fixed patch and continue\n", parentName(c))
		pc.Printf("  %s skip      drop the patch and continue\n", parentName(c))
		pc.Printf("  %s abort     give up on the patch\n", parentName(c))
	}
	return nil
}

func parentName(c *cobra.Command) string {
	if c.Parent() != nil {
		return c.Parent().Name()
	}
	return c.Name()
}
