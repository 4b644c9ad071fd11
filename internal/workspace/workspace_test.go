package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_ResolvesAbsolutePath(t *testing.T) {
	ws, err := Open("circuit.cir")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(ws.Path))
	assert.Equal(t, "circuit.cir", filepath.Base(ws.Path))
	assert.Equal(t, filepath.Dir(ws.Path), ws.Dir)
}

func TestOpen_Empty(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestWriteNetlist_CreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.cir")
	ws, err := Open(path)
	require.NoError(t, err)

	first := "* old\nR1 1 0 1k\n.OP\n.END"
	_, err = ws.WriteNetlist(first)
	require.NoError(t, err)

	artifact, err := ws.WriteNetlist(".TRAN 0 1m\n.END")
	require.NoError(t, err)
	assert.Equal(t, path, artifact.Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ".TRAN 0 1m\n.END", string(data))

	read, err := ws.ReadNetlist()
	require.NoError(t, err)
	assert.Equal(t, artifact.Content, read.Content)
}

func TestReadNetlist_Missing(t *testing.T) {
	ws, err := Open(filepath.Join(t.TempDir(), "missing.cir"))
	require.NoError(t, err)

	_, err = ws.ReadNetlist()
	assert.ErrorContains(t, err, "netlist file not found")
}
