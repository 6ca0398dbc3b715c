package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	assert.False(t, FileExists(""))
	assert.False(t, FileExists(filepath.Join(t.TempDir(), "missing")))

	path := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.True(t, FileExists(path))
}

func TestReadFileYAML(t *testing.T) {
	target := map[string]interface{}{}
	assert.Error(t, ReadFileYAML(filepath.Join(t.TempDir(), "missing"), &target))

	path := filepath.Join(t.TempDir(), "conf.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: perch\nport: 3500\n"), 0644))
	require.NoError(t, ReadFileYAML(path, &target))
	assert.Equal(t, "perch", target["name"])
	assert.Equal(t, 3500, target["port"])

	require.NoError(t, os.WriteFile(path, []byte("{invalid: [yaml"), 0644))
	assert.Error(t, ReadFileYAML(path, &target))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.yml")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0600))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "."), "temporary files must not survive")
	}
}

func TestBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.yml")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0640))

	backupPath, err := BackupFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(backupPath, path+".bak."))

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	info, err := os.Stat(backupPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	_, err = BackupFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
