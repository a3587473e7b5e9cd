package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root))

	for _, dir := range []string{
		filepath.Join(root, ".shiftflow", "logs"),
		filepath.Join(root, ".shiftflow", "locks"),
		filepath.Join(root, ".shiftflow", "quarantine"),
		filepath.Join(root, "store", "drafts"),
		filepath.Join(root, "store", "status"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}

	for _, file := range []string{"config.yaml", "rules.yaml"} {
		data, err := os.ReadFile(filepath.Join(root, file))
		require.NoError(t, err, file)
		assert.NotEmpty(t, data, file)
	}
}

func TestInit_NeverOverwritesExistingConfig(t *testing.T) {
	root := t.TempDir()
	custom := []byte("station:\n  base_id: CGH\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), custom, 0644))

	require.NoError(t, Init(root))

	data, err := os.ReadFile(filepath.Join(root, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, custom, data)
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	assert.Equal(t, root, FindRoot(nested))
	assert.Equal(t, root, FindRoot(root))
	assert.Equal(t, "", FindRoot(t.TempDir()))
}
