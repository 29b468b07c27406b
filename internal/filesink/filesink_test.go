package filesink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCreatesDirAndWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")
	sink := New(dir)

	require.NoError(t, sink.Save("report.txt", []byte("contents")))

	got, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "contents", string(got))
}

func TestSaveStripsDirectoryTraversal(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir)

	require.NoError(t, sink.Save("../escape.txt", []byte("x")))

	_, err := os.ReadFile(filepath.Join(dir, "..", "escape.txt"))
	assert.Error(t, err) // must not have escaped dir

	got, err := os.ReadFile(filepath.Join(dir, "escape.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}
