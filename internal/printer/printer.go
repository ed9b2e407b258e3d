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

// Package printer defines utilities to display ply CLI output.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/plydev/ply/internal/types"
)

// Printer defines capabilities to display content in the ply CLI.
type Printer interface {
	Printf(format string, args ...interface{})
	OptPrintf(opt *Options, format string, args ...interface{})
	OutStream() io.Writer
	ErrStream() io.Writer
}

// Options are optional options for printer
type Options struct {
	// OutputToStderr indicates should output be printed to stderr instead
	// of stdout
	OutputToStderr bool
	// RepoPath is the unique path to the repository
	RepoPath types.UniquePath
}

// NewOpt returns a pointer to new options
func NewOpt() *Options {
	return &Options{}
}

// Repo sets the repository unique path in options
func (opt *Options) Repo(p types.UniquePath) *Options {
	opt.RepoPath = p
	return opt
}

// Stderr sets output to stderr in options
func (opt *Options) Stderr() *Options {
	opt.OutputToStderr = true
	return opt
}

// New returns an instance of Printer.
func New(outStream, errStream io.Writer) Printer {
	if outStream == nil {
		outStream = os.Stdout
	}
	if errStream == nil {
		errStream = os.Stderr
	}
	return &printer{
		outStream: outStream,
		errStream: errStream,
	}
}

// printer implements the default Printer to be used in the ply codebase.
type printer struct {
	outStream io.Writer
	errStream io.Writer
}

// The key type is unexported to prevent collisions with context keys defined
// in other packages.
type contextKey int

// printerKey is the context key for the printer. Its value of zero is
// arbitrary.
const printerKey contextKey = 0

// Printf is the wrapper over fmt.Printf that displays the output.
func (pr *printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(pr.outStream, format, args...)
}

// OptPrintf is the wrapper over fmt.Printf that displays the output
// according to the opt.
func (pr *printer) OptPrintf(opt *Options, format string, args ...interface{}) {
	if opt == nil {
		fmt.Fprintf(pr.outStream, format, args...)
		return
	}
	o := pr.outStream
	if opt.OutputToStderr {
		o = pr.errStream
	}
	if !opt.RepoPath.Empty() {
		// try to print the relative path of the repo if we can else use
		// the abs path
		relPath, err := opt.RepoPath.RelativePath()
		if err != nil {
			relPath = string(opt.RepoPath)
		}
		format = fmt.Sprintf("Repo %q: ", relPath) + format
	}
	fmt.Fprintf(o, format, args...)
}

func (pr *printer) OutStream() io.Writer {
	return pr.outStream
}

func (pr *printer) ErrStream() io.Writer {
	return pr.errStream
}

// FromContextOrDie returns the printer instance associated with the context.
func FromContextOrDie(ctx context.Context) Printer {
	pr, ok := ctx.Value(printerKey).(Printer)
	if ok {
		return pr
	}
	panic("printer missing in context")
}

// WithContext creates a new context from the given parent context by setting
// the printer instance.
func WithContext(ctx context.Context, pr Printer) context.Context {
	return context.WithValue(ctx, printerKey, pr)
}
