package syncq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRoundTrip(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "outbox.json"))

	cmds, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, cmds)

	first := Command{
		Method:         "POST",
		Path:           "/v1/exchanges/transfer",
		Body:           map[string]any{"data": map[string]any{"sender_id": float64(1)}},
		IdempotencyKey: "k1",
	}
	second := Command{Method: "POST", Path: "/v1/firms/upgrade", IdempotencyKey: "k2"}
	require.NoError(t, q.Push(first))
	require.NoError(t, q.Push(second))

	cmds, err = q.Load()
	require.NoError(t, err)
	assert.Equal(t, []Command{first, second}, cmds)

	require.NoError(t, q.Save(cmds[1:]))
	cmds, err = q.Load()
	require.NoError(t, err)
	assert.Equal(t, []Command{second}, cmds)

	info, err := os.Stat(q.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadEmptyAndCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	cmds, err := New(path).Load()
	require.NoError(t, err)
	assert.Empty(t, cmds)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = New(path).Load()
	assert.Error(t, err)
}

func TestDefaultUsesHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "fl")
	t.Setenv("FL_HOME", home)
	q, err := Default()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "outbox.json"), q.path)
	assert.DirExists(t, home)
}
