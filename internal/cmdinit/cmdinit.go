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

// Package cmdinit contains the init command.
package cmdinit

import (
	"context"
	"os"

	"github.com/plydev/ply/internal/patchrepo"
	"github.com/plydev/ply/internal/printer"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Initialize a patch repository",
		Long: `Initialize a patch repository in DIR (default: the current directory),
creating an empty series file and committing it.`,
		Args:         cobra.MaximumNArgs(1),
		RunE:         r.runE,
		SilenceUsage: true,
	}
	r.Command = c
	return r
}

// NewCommand returns an init command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	pr, err := patchrepo.Open(dir)
	if err != nil {
		return err
	}
	if err := pr.Initialize(r.ctx); err != nil {
		return err
	}
	printer.FromContextOrDie(r.ctx).Printf("Initialized patch repository in %s\n", pr.Path())
	return nil
}
