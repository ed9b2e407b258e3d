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

// Package cmdcheck contains the check command.
package cmdcheck

import (
	"context"
	"fmt"

	"github.com/plydev/ply/internal/printer"
	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "check",
		Short: "Verify that patch files and the series manifest agree",
		Long: `Compare the set of patch files on disk against the flattened series
manifest and report entries present on only one side. The command fails
when the two disagree.`,
		Args:         cobra.NoArgs,
		RunE:         r.runE,
		SilenceUsage: true,
	}
	r.Command = c
	return r
}

// NewCommand returns a check command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	pr, err := runner.OpenPatchRepo(r.ctx)
	if err != nil {
		return err
	}
	result, err := pr.Check()
	if err != nil {
		return err
	}

	pc := printer.FromContextOrDie(r.ctx)
	if result.OK {
		pc.Printf("OK\n")
		return nil
	}
	for _, name := range result.MissingFromDisk {
		pc.Printf("in series but not on disk: %s\n", name)
	}
	for _, name := range result.MissingFromSeries {
		pc.Printf("on disk but not in series: %s\n", name)
	}
	return fmt.Errorf("patch repository %s is inconsistent", pr.Path())
}
