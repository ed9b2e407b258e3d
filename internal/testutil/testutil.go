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

// Package testutil manages local git repositories for testing.
package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/otiai10/copy"
	"github.com/plydev/ply/internal/gitutil"
	"github.com/plydev/ply/internal/printer/fake"
	"github.com/stretchr/testify/assert"
)

// TestRepo manages a local git repository for testing.
type TestRepo struct {
	T *testing.T

	// Dir is the temp directory of the git repo.
	Dir string

	// Repo wraps the git operations used by the code under test.
	Repo *gitutil.Repo
}

// NewRepo creates an initialized git repository in a temp directory with a
// committer identity configured.
func NewRepo(t *testing.T) *TestRepo {
	t.Helper()
	dir := t.TempDir()
	g := attach(t, dir)
	g.Git("init", "--quiet")
	g.configureIdentity()
	return g
}

// attach wraps an existing directory without initializing a repository.
func attach(t *testing.T, dir string) *TestRepo {
	t.Helper()
	repo, err := gitutil.NewRepo(dir)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return &TestRepo{T: t, Dir: repo.Path.String(), Repo: repo}
}

func (g *TestRepo) configureIdentity() {
	g.Git("config", "user.name", "ply tests")
	g.Git("config", "user.email", "ply-tests@example.com")
	g.Git("config", "commit.gpgsign", "false")
}

// Git runs a git command in the repository and fails the test on error.
// The trimmed stdout is returned.
func (g *TestRepo) Git(args ...string) string {
	g.T.Helper()
	runner, err := gitutil.NewRunner(g.Dir)
	if !assert.NoError(g.T, err) {
		g.T.FailNow()
	}
	rr, err := runner.Run(fake.CtxWithDefaultPrinter(), args...)
	if !assert.NoError(g.T, err, "git %v", args) {
		g.T.FailNow()
	}
	return strings.TrimSpace(rr.Stdout)
}

// WriteFile writes a file relative to the repository root.
func (g *TestRepo) WriteFile(name, content string) {
	g.T.Helper()
	p := filepath.Join(g.Dir, filepath.FromSlash(name))
	if !assert.NoError(g.T, os.MkdirAll(filepath.Dir(p), 0755)) {
		g.T.FailNow()
	}
	if !assert.NoError(g.T, os.WriteFile(p, []byte(content), 0644)) {
		g.T.FailNow()
	}
}

// ReadFile reads a file relative to the repository root.
func (g *TestRepo) ReadFile(name string) string {
	g.T.Helper()
	data, err := os.ReadFile(filepath.Join(g.Dir, filepath.FromSlash(name)))
	if !assert.NoError(g.T, err) {
		g.T.FailNow()
	}
	return string(data)
}

// Exists reports whether a path exists relative to the repository root.
func (g *TestRepo) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(g.Dir, filepath.FromSlash(name)))
	return err == nil
}

// CommitFile writes a file and commits it with the given message.
func (g *TestRepo) CommitFile(name, content, msg string) {
	g.T.Helper()
	g.WriteFile(name, content)
	g.Git("add", "--", name)
	g.Git("commit", "--quiet", "-m", msg)
}

// Head returns the hash of HEAD.
func (g *TestRepo) Head() string {
	g.T.Helper()
	return g.Git("rev-parse", "HEAD")
}

// Message returns the full message of the commit skip steps behind HEAD.
func (g *TestRepo) Message(skip int) string {
	g.T.Helper()
	return g.Git("log", "--pretty=format:%B", "-1", "--skip="+strconv.Itoa(skip))
}

// CommitCount returns the number of commits on the current branch.
func (g *TestRepo) CommitCount() int {
	g.T.Helper()
	n, err := strconv.Atoi(g.Git("rev-list", "--count", "HEAD"))
	if !assert.NoError(g.T, err) {
		g.T.FailNow()
	}
	return n
}

// Clone copies the repository, .git directory included, into a fresh temp
// directory so tests can diverge two replicas of the same history.
func (g *TestRepo) Clone() *TestRepo {
	g.T.Helper()
	dir := g.T.TempDir()
	if !assert.NoError(g.T, copy.Copy(g.Dir, dir)) {
		g.T.FailNow()
	}
	return attach(g.T, dir)
}
