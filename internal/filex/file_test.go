package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesNestedDirs(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "a", "b", "tokens_db.json")

	require.NoError(t, EnsureParentDir(path))

	fi, err := os.Stat(filepath.Join(tmp, "a", "b"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	// idempotent
	require.NoError(t, EnsureParentDir(path))
}

func TestWriteFileAtomic_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens_db.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o600))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o600))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens_db.json")

	for i := 0; i < 5; i++ {
		require.NoError(t, WriteFileAtomic(path, []byte("x"), 0o600))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "tokens_db.json", entries[0].Name())
}

func TestWriteFileAtomic_ReadersNeverSeePartialContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens_db.json")
	small := []byte("{}")
	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = 'z'
	}
	require.NoError(t, WriteFileAtomic(path, small, 0o600))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			data := small
			if i%2 == 0 {
				data = large
			}
			if err := WriteFileAtomic(path, data, 0o600); err != nil {
				t.Errorf("write: %v", err)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		if len(got) != len(small) && len(got) != len(large) {
			t.Fatalf("observed partial file of %d bytes", len(got))
		}
	}
}

func TestWriteFileAtomic_FailsWhenDirIsAFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := WriteFileAtomic(filepath.Join(blocker, "tokens_db.json"), []byte("{}"), 0o600)
	require.Error(t, err)
}

func TestLock_ExcludesOtherHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens_db.json.lock")

	unlock, err := Lock(path)
	require.NoError(t, err)

	acquired := make(chan func() error)
	go func() {
		second, err := Lock(path)
		if err != nil {
			t.Error(err)
			close(acquired)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock returned while the first was held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, unlock())
	select {
	case second, ok := <-acquired:
		require.True(t, ok)
		require.NoError(t, second())
	case <-time.After(5 * time.Second):
		t.Fatal("second Lock never acquired")
	}
}
