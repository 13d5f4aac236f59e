package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileDropsDanglingEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, LabelDirName, "train"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ImageDirName, "train"), 0o755))

	writeFile := func(rel string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte("0 0.5 0.5 0.1 0.1\n"), 0o644))
	}
	writeFile(filepath.Join(LabelDirName, "train", "a.txt"))
	writeFile(filepath.Join(LabelDirName, "train", "b.txt"))
	writeFile(filepath.Join(ImageDirName, "train", "b.jpg"))

	entries := []Entry{
		// Remote entry with its label on disk: kept.
		{Ref: "https://cdn.example.com/a.jpg", Label: filepath.Join(LabelDirName, "train", "a.txt")},
		// Local entry with image and label on disk: kept.
		{Ref: filepath.Join(ImageDirName, "train", "b.jpg"), Label: filepath.Join(LabelDirName, "train", "b.txt")},
		// Label file missing: dropped.
		{Ref: "https://cdn.example.com/c.jpg", Label: filepath.Join(LabelDirName, "train", "c.txt")},
		// Local image missing: dropped.
		{Ref: filepath.Join(ImageDirName, "train", "d.jpg"), Label: filepath.Join(LabelDirName, "train", "a.txt")},
	}
	require.NoError(t, WriteList(filepath.Join(dir, TrainListName), entries))
	require.NoError(t, WriteList(filepath.Join(dir, ValListName), nil))

	manifest := &Manifest{
		Path:     dir,
		Train:    TrainListName,
		Val:      ValListName,
		LabelDir: LabelDirName,
		NC:       2,
		Names:    []string{"red", "blue"},
	}
	require.NoError(t, manifest.Write())

	_, stats, err := Reconcile(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 2, stats.Dropped)

	kept, err := ReadList(filepath.Join(dir, TrainListName))
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, entries[0], kept[0])
	assert.Equal(t, entries[1], kept[1])
}

func TestReconcileMissingManifest(t *testing.T) {
	_, _, err := Reconcile(context.Background(), t.TempDir())
	require.Error(t, err)
}
