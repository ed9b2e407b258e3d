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

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/plydev/ply/commands"
	"github.com/plydev/ply/internal/printer"
	"github.com/plydev/ply/internal/runner"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:   "ply",
		Short: "git-based patch management",
		Long: `ply maintains a queue of patches against an upstream project as plain
patch files in a separate git repository, so local changes stay reviewable
and replayable while upstream moves.`,
		SilenceUsage: true,
		// We handle all errors in the commands so we can adjust the
		// message coming from libraries.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cmd.Flags().GetBool("help")
			if err != nil {
				return err
			}
			if h {
				return cmd.Help()
			}
			return cmd.Usage()
		},
	}

	// wire the printer into the context shared by all commands
	pr := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := printer.WithContext(context.Background(), pr)

	cmd.InitDefaultHelpCmd()
	cmd.AddCommand(commands.GetPlyCommands(ctx, "ply")...)

	// enable stack traces
	cmd.PersistentFlags().BoolVar(&runner.StackOnError, "stack-trace", false,
		"Print a stack-trace on failure")

	if _, err := exec.LookPath("git"); err != nil {
		fmt.Fprintf(os.Stderr, "ply requires that `git` is installed and on the PATH\n")
		os.Exit(1)
	}

	runner.ExitOnError = true
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
