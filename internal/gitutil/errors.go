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

package gitutil

import (
	"strings"
)

type ExecErrorType int

const (
	Unknown ExecErrorType = iota
	UnknownReference
	NotARepository
	PatchDidNotApply
	PatchAlreadyApplied
)

// ExecError carries the full outcome of a failed git invocation. Type is
// classified from the command output so callers can react to the
// distinguished mailbox-apply conditions without string matching of their
// own.
type ExecError struct {
	Type     ExecErrorType
	Args     []string
	Err      error
	ExitCode int
	StdErr   string
	StdOut   string
}

func (e *ExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString(e.Err.Error())
	b.WriteString(": ")
	b.WriteString(e.StdErr)
	return b.String()
}

func determineErrorType(stdOut, stdErr string) ExecErrorType {
	out := stdOut + "\n" + stdErr
	switch {
	case strings.Contains(out, "already introduced the same changes"),
		strings.Contains(out, "Patch already applied"):
		return PatchAlreadyApplied
	case strings.Contains(out, "Failed to merge in the changes"),
		strings.Contains(out, "patch does not apply"),
		strings.Contains(out, "Patch failed at"):
		return PatchDidNotApply
	case strings.Contains(out, "unknown revision or path not in the working tree"):
		return UnknownReference
	case strings.Contains(out, "not a git repository"):
		return NotARepository
	}
	return Unknown
}
