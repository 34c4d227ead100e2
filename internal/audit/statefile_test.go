package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleState struct {
	Mode string `json:"mode"`
	N    int    `json:"n"`
}

func TestWriteAndReadStateFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	in := sampleState{Mode: "full", N: 7}
	require.NoError(t, WriteStateFile(path, in))

	var out sampleState
	found, err := ReadStateFile(path, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, in, out)
}

func TestReadStateFile_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	var out sampleState
	found, err := ReadStateFile(path, &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestWriteStateFile_OverwriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, WriteStateFile(path, sampleState{Mode: "a", N: 1}))
	require.NoError(t, WriteStateFile(path, sampleState{Mode: "b", N: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "state.json", entries[0].Name())

	var out sampleState
	found, err := ReadStateFile(path, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", out.Mode)
}
