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

package commands

import (
	"context"

	"github.com/plydev/ply/internal/cmdabort"
	"github.com/plydev/ply/internal/cmdcheck"
	"github.com/plydev/ply/internal/cmdgraph"
	"github.com/plydev/ply/internal/cmdinit"
	"github.com/plydev/ply/internal/cmdlink"
	"github.com/plydev/ply/internal/cmdresolve"
	"github.com/plydev/ply/internal/cmdrestore"
	"github.com/plydev/ply/internal/cmdrollback"
	"github.com/plydev/ply/internal/cmdsave"
	"github.com/plydev/ply/internal/cmdseries"
	"github.com/plydev/ply/internal/cmdskip"
	"github.com/plydev/ply/internal/cmdstatus"
	"github.com/plydev/ply/internal/cmdunlink"
	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

// GetPlyCommands returns the set of ply commands to be registered.
func GetPlyCommands(ctx context.Context, name string) []*cobra.Command {
	c := []*cobra.Command{
		cmdinit.NewCommand(ctx, name),
		cmdlink.NewCommand(ctx, name),
		cmdunlink.NewCommand(ctx, name),
		cmdstatus.NewCommand(ctx, name),
		cmdsave.NewCommand(ctx, name),
		cmdrestore.NewCommand(ctx, name),
		cmdresolve.NewCommand(ctx, name),
		cmdskip.NewCommand(ctx, name),
		cmdabort.NewCommand(ctx, name),
		cmdrollback.NewCommand(ctx, name),
		cmdcheck.NewCommand(ctx, name),
		cmdseries.NewCommand(ctx, name),
		cmdgraph.NewCommand(ctx, name),
	}

	// apply cross-cutting concerns to commands
	for i := range c {
		NormalizeCommand(c[i])
	}
	return c
}

// NormalizeCommand wires the shared error handling into a command and its
// subcommands.
func NormalizeCommand(c *cobra.Command) {
	// let the root handle errors so usage isn't printed on failure
	c.SilenceErrors = true

	if c.RunE != nil {
		fn := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			return runner.HandleError(cmd, fn(cmd, args))
		}
	}
	for _, sub := range c.Commands() {
		NormalizeCommand(sub)
	}
}
