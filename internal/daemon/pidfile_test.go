package daemon

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_IsRunning(t *testing.T) {
	dir := t.TempDir()

	live := NewPIDFile(filepath.Join(dir, "live.pid"))
	require.NoError(t, live.Write())
	pid, running := live.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	// A very high PID that almost certainly doesn't exist.
	dead := NewPIDFile(filepath.Join(dir, "dead.pid"))
	require.NoError(t, dead.WritePID(999999))
	pid, running = dead.IsRunning()
	assert.Equal(t, 999999, pid)
	assert.False(t, running)

	missing := NewPIDFile(filepath.Join(dir, "missing.pid"))
	pid, running = missing.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	err := pf.Signal(syscall.Signal(0))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	// Stale file from a dead process is taken over.
	require.NoError(t, pf.WritePID(999999))
	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// Re-acquiring from the same process is fine.
	require.NoError(t, pf.Acquire())

	pf.Release()
	_, err = os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Release_KeepsForeignFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.WritePID(999999))

	pf.Release()

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 999999, pid)
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	_, err := pf.Stop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)

	// A stale file is cleaned up.
	require.NoError(t, pf.WritePID(999999))
	_, err = pf.Stop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}
