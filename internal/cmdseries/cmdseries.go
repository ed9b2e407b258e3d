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

// Package cmdseries contains the series command.
package cmdseries

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
		Use:   "series",
		Short: "Print the ordered patch series",
		Long: `Print the fully flattened patch series in application order, expanding
recursive inclusion directives. With --tree, render the inclusion
structure instead.`,
		Args:         cobra.NoArgs,
		RunE:         r.runE,
		SilenceUsage: true,
	}
	c.Flags().BoolVar(&r.tree, "tree", false,
		"render the series as a tree of included manifests")
	r.Command = c
	return r
}

// NewCommand returns a series command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
	tree    bool
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	pr, err := runner.OpenPatchRepo(r.ctx)
	if err != nil {
		return err
	}
	pc := printer.FromContextOrDie(r.ctx)

	if r.tree {
		out, err := pr.SeriesTree()
		if err != nil {
			return err
		}
		pc.Printf("%s", out)
		return nil
	}

	names, err := pr.Series()
	if err != nil {
		return err
	}
	for _, name := range names {
		pc.Printf("%s\n", name)
	}
	return nil
}
