package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_WritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	fl := NewFileLock(path)
	require.NoError(t, fl.TryLock())
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestFileLock_UnlockRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	fl := NewFileLock(path)
	require.NoError(t, fl.TryLock())
	require.NoError(t, fl.Unlock())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Unlock when not held is a no-op.
	assert.NoError(t, fl.Unlock())
}

func TestFileLock_Relockable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	fl := NewFileLock(path)
	require.NoError(t, fl.TryLock())
	require.NoError(t, fl.Unlock())

	fl2 := NewFileLock(path)
	require.NoError(t, fl2.TryLock())
	require.NoError(t, fl2.Unlock())
}

func TestMutexMap_SerializesPerKey(t *testing.T) {
	m := NewMutexMap()
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("key")
			counter++
			m.Unlock("key")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
