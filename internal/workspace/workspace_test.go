package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPathCreatesOwnerDir(t *testing.T) {
	root := t.TempDir()
	ws, err := New(root)
	require.NoError(t, err)

	owner := uuid.New()
	asset := uuid.New()

	path, err := ws.UploadPath(owner, asset, ".mov")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, owner.String(), asset.String()+".mov"), path)

	info, err := os.Stat(filepath.Join(root, owner.String()))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPromoteOutputRenamesTempToFinal(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, "out.mp4.tmp")
	final := filepath.Join(dir, "out.mp4")

	require.NoError(t, os.WriteFile(temp, []byte("data"), 0o644))
	require.NoError(t, PromoteOutput(temp, final))

	_, err := os.Stat(final)
	require.NoError(t, err)
	_, err = os.Stat(temp)
	assert.True(t, os.IsNotExist(err))
}

func TestPromoteOutputIsIdempotentWhenFinalAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, "out.mp4.tmp")
	final := filepath.Join(dir, "out.mp4")

	require.NoError(t, os.WriteFile(final, []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(temp, []byte("fresh"), 0o644))

	require.NoError(t, PromoteOutput(temp, final))

	contents, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(contents))
}

func TestSizeReportsFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	size, err := Size(path)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}
