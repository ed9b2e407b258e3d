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

// Package cmdsave contains the save command.
package cmdsave

import (
	"context"

	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "save SINCE",
		Short: "Save commits after SINCE as patches in the patch repository",
		Long: `Turn every commit after SINCE into one patch file per commit, store the
files in the linked patch repository and register them in the series.
Commits that already carry a patch annotation refresh their existing patch
file. SINCE is a single committish; ranges are rejected.`,
		Args:         cobra.ExactArgs(1),
		RunE:         r.runE,
		SilenceUsage: true,
	}
	c.Flags().StringVar(&r.prefix, "prefix", "",
		"store new patches under this subdirectory of the patch repository")
	r.Command = c
	return r
}

// NewCommand returns a save command instance.
func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
	prefix  string
}

func (r *Runner) runE(c *cobra.Command, args []string) error {
	w, err := runner.OpenWorkingRepo()
	if err != nil {
		return err
	}
	return w.Save(r.ctx, args[0], r.prefix)
}
