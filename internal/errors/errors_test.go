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

package errors_test

import (
	"fmt"
	"testing"

	"github.com/plydev/ply/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestE(t *testing.T) {
	testCases := map[string]struct {
		err      error
		expected string
	}{
		"op and kind": {
			err:      errors.E(errors.Op("workrepo.Save"), errors.UncommittedChanges),
			expected: "workrepo.Save: uncommitted changes",
		},
		"repo and patch": {
			err: errors.E(errors.Op("patchrepo.RemovePatch"),
				errors.Repo("/tmp/patches"), errors.Patch("a.patch"),
				errors.PatchNotInSeries),
			expected: "patchrepo.RemovePatch: repo /tmp/patches: patch a.patch: patch not found in series",
		},
		"wrapped error fields are deduplicated": {
			err: errors.E(errors.Op("workrepo.Restore"), errors.Repo("/tmp/work"),
				errors.E(errors.Op("gitutil.ApplyMailbox"), errors.Repo("/tmp/work"),
					errors.PatchDidNotApplyCleanly)),
			expected: "workrepo.Restore: repo /tmp/work:\n\tgitutil.ApplyMailbox: patch did not apply cleanly",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	err := errors.E(errors.Op("workrepo.Restore"),
		errors.E(errors.Op("gitutil.ApplyMailbox"), errors.PatchAlreadyApplied))

	assert.True(t, errors.IsKind(err, errors.PatchAlreadyApplied))
	assert.False(t, errors.IsKind(err, errors.PatchDidNotApplyCleanly))
	assert.False(t, errors.IsKind(nil, errors.PatchAlreadyApplied))
	assert.False(t, errors.IsKind(fmt.Errorf("plain"), errors.Git))
}

func TestKindOf(t *testing.T) {
	testCases := map[string]struct {
		err      error
		expected errors.Kind
	}{
		"classified kind found through an unclassified wrapper": {
			err: errors.E(errors.Op("workrepo.Restore"),
				errors.E(errors.Op("gitutil.Run"), errors.Git)),
			expected: errors.Git,
		},
		"outermost classified kind wins": {
			err: errors.E(errors.Op("workrepo.Save"), errors.UncommittedChanges,
				errors.E(errors.Op("gitutil.Run"), errors.Git)),
			expected: errors.UncommittedChanges,
		},
		"plain error": {
			err:      fmt.Errorf("plain"),
			expected: errors.Other,
		},
		"nil": {
			err:      nil,
			expected: errors.Other,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, errors.KindOf(tc.err))
		})
	}
}
