// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDir_Default(t *testing.T) {
	t.Setenv("CHAPO_DATA_DIR", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".chapo"), GetDataDir())
}

func TestGetDataDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHAPO_DATA_DIR", dir)
	assert.Equal(t, dir, GetDataDir())
}

func TestGetDataDir_TildeExpansion(t *testing.T) {
	t.Setenv("CHAPO_DATA_DIR", "~/chapo-data")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "chapo-data"), GetDataDir())
}

func TestGetDataDir_RelativePath(t *testing.T) {
	t.Setenv("CHAPO_DATA_DIR", "relative/data")
	got := GetDataDir()
	assert.True(t, filepath.IsAbs(got))
	assert.Contains(t, got, filepath.Join("relative", "data"))
}

func TestGetSubDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHAPO_DATA_DIR", dir)
	assert.Equal(t, filepath.Join(dir, "transcripts"), GetSubDir("transcripts"))
}
