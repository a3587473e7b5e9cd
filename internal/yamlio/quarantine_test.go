package yamlio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarantine_MovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0644))

	qdir := filepath.Join(dir, "quarantine")
	dest, err := Quarantine(qdir, path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, dest, "state.yaml.")
	assert.Contains(t, dest, ".corrupt")

	_, err = os.Stat(dest)
	assert.NoError(t, err)
}

func TestRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(path+".bak", []byte("name: good"), 0644))

	require.NoError(t, RestoreFromBackup(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "name: good", string(data))
}

func TestRestoreFromBackup_RejectsCorruptBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(path+".bak", []byte("{{{also bad"), 0644))

	assert.Error(t, RestoreFromBackup(path))
}

func TestRestoreFromBackup_NoBackup(t *testing.T) {
	assert.Error(t, RestoreFromBackup(filepath.Join(t.TempDir(), "state.yaml")))
}

func TestRecoverCorrupted_RestoresWhenBackupIsGood(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{corrupt"), 0644))
	require.NoError(t, os.WriteFile(path+".bak", []byte("name: good"), 0644))

	require.NoError(t, RecoverCorrupted(filepath.Join(dir, "q"), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "name: good", string(data))
}

func TestRecoverCorrupted_AbsentAfterNoBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{corrupt"), 0644))

	require.NoError(t, RecoverCorrupted(filepath.Join(dir, "q"), path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
