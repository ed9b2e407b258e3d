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

// Package errors defines the error handling used by the ply codebase.
package errors

import (
	"fmt"
	"strings"

	"github.com/plydev/ply/internal/types"
)

// Error is an implementation of the error interface used in the ply
// codebase.
// It is based on the design in https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
type Error struct {
	// Repo is the path of the repository involved in the operation.
	Repo Repo

	// Patch is the name of the patch involved in the operation.
	Patch Patch

	// Op is the operation being performed, for ex. workrepo.Restore
	Op Op

	// Kind refers to the class of error.
	Kind Kind

	// Err refers to the wrapped error (if any).
	Err error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Repo != "" {
		pad(b, ": ")
		b.WriteString("repo ")
		b.WriteString(string(e.Repo))
	}

	if e.Patch != "" {
		pad(b, ": ")
		b.WriteString("patch ")
		b.WriteString(string(e.Patch))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		if wrappedErr, ok := e.Err.(*Error); ok {
			if !wrappedErr.Zero() {
				pad(b, ":\n\t")
				b.WriteString(wrappedErr.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// pad appends str to the string buffer unless the buffer is empty.
func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Zero() bool {
	return e.Op == "" && e.Repo == "" && e.Patch == "" && e.Kind == 0 && e.Err == nil
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Op describes the operation being performed.
type Op string

// Repo is the path of the repository involved in the operation.
type Repo string

// Patch is the name of the patch involved in the operation.
type Patch string

// Kind describes the class of errors encountered.
type Kind int

const (
	Other                    Kind = iota // Unclassified. Will not be printed.
	Internal                             // Internal error.
	InvalidParam                         // Value is not valid.
	IO                                   // Filesystem error.
	Git                                  // Errors from git.
	UncommittedChanges                   // Working tree is dirty where a clean one is required.
	NoLinkedPatchRepo                    // Working repo is not linked to a patch repo.
	AlreadyLinkedToPatchRepo             // Working repo is already linked to a patch repo.
	PathNotFound                         // Expected file (e.g. the conflict marker) is absent.
	PatchDidNotApplyCleanly              // Patch application stopped on a conflict.
	PatchAlreadyApplied                  // Patch content already present upstream.
	PatchNotInSeries                     // Patch name absent from the series manifest.
	NoUpstreamBase                       // Every commit carries a patch annotation.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Internal:
		return "internal error"
	case InvalidParam:
		return "invalid parameter value"
	case IO:
		return "filesystem error"
	case Git:
		return "git error"
	case UncommittedChanges:
		return "uncommitted changes"
	case NoLinkedPatchRepo:
		return "no linked patch repo"
	case AlreadyLinkedToPatchRepo:
		return "already linked to a patch repo"
	case PathNotFound:
		return "path not found"
	case PatchDidNotApplyCleanly:
		return "patch did not apply cleanly"
	case PatchAlreadyApplied:
		return "patch already applied"
	case PatchNotInSeries:
		return "patch not found in series"
	case NoUpstreamBase:
		return "no upstream base commit"
	}
	return "unknown kind"
}

func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case types.UniquePath:
			e.Repo = Repo(a)
		case Repo:
			e.Repo = a
		case Patch:
			e.Patch = a
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			e.Err = fmt.Errorf("%s", a)
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to errors.E", a, a))
		}
	}

	wrappedErr, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if e.Repo == wrappedErr.Repo {
		wrappedErr.Repo = ""
	}

	if e.Patch == wrappedErr.Patch {
		wrappedErr.Patch = ""
	}

	if e.Op == wrappedErr.Op {
		wrappedErr.Op = ""
	}

	if e.Kind == wrappedErr.Kind {
		wrappedErr.Kind = 0
	}

	return e
}
