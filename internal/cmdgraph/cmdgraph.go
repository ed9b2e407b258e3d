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

// Package cmdgraph contains the graph command.
package cmdgraph

import (
	"context"

	"github.com/plydev/ply/internal/printer"
	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "graph",
		Short: "Print the patch dependency graph in DOT format",
		Long: `Derive which patches depend on which from file overlap: a patch depends
on the nearest earlier patch touching the same file. The graph is printed
in DOT format, with edges labeled by the shared files, and can be piped
straight into graphviz.`,
		Args:         cobra.NoArgs,
		RunE:         r.runE,
		SilenceUsage: true,
	}
	r.Command = c
	return r
}

// NewCommand returns a graph command instance.
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
	out, err := pr.PatchDependencyDotGraph()
	if err != nil {
		return err
	}
	printer.FromContextOrDie(r.ctx).Printf("%s\n", out)
	return nil
}
