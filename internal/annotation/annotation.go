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

// Package annotation reads and writes the structured markers ply embeds in
// commit messages. The grammar is strict: one marker per line, `Key: value`
// starting at the beginning of the line. A key mentioned inside arbitrary
// commit text does not match.
package annotation

import (
	"bufio"
	"strings"
)

const (
	// PatchKey marks a working-repo commit with the patch that produced it.
	PatchKey = "Ply-Patch"

	// BasedOnKey marks a patch-repo commit with the upstream commit hash
	// the patch series was based on.
	BasedOnKey = "Ply-Based-On"
)

// Patch returns the patch name recorded in a commit message, if any.
func Patch(msg string) (string, bool) {
	return find(msg, PatchKey)
}

// BasedOn returns the upstream commit hash recorded in a commit message,
// if any.
func BasedOn(msg string) (string, bool) {
	return find(msg, BasedOnKey)
}

// find scans msg line by line for `key: value` and returns the first value
// found.
func find(msg, key string) (string, bool) {
	prefix := key + ":"
	scanner := bufio.NewScanner(strings.NewReader(msg))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		value := strings.TrimSpace(line[len(prefix):])
		if value == "" {
			continue
		}
		return value, true
	}
	return "", false
}

// Append returns msg with a `key: value` marker appended as a trailing
// block.
func Append(msg, key, value string) string {
	return strings.TrimRight(msg, "\n") + "\n\n" + key + ": " + value + "\n"
}
