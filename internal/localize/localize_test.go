package localize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/yolosetgo/internal/dataset"
	"github.com/vk/yolosetgo/internal/fetch"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	payload := pngBytes(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/missing.png":
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/listing.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>not an image</html>"))
		default:
			w.Header().Set("Content-Type", "image/png")
			w.Write(payload)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// buildSource lays out an assembled remote dataset with the given entry refs
// per split.
func buildSource(t *testing.T, refs map[string][]string) *dataset.Manifest {
	t.Helper()
	dir := t.TempDir()
	for _, split := range dataset.Splits {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, dataset.LabelDirName, split), 0o755))

		var entries []dataset.Entry
		for i, ref := range refs[split] {
			rel := filepath.Join(dataset.LabelDirName, split, fmt.Sprintf("145_image-%07d.txt", i))
			require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte("0 0.5 0.5 0.2 0.2\n"), 0o644))
			entries = append(entries, dataset.Entry{Ref: ref, Label: rel})
		}
		listName := dataset.TrainListName
		if split == "val" {
			listName = dataset.ValListName
		}
		require.NoError(t, dataset.WriteList(filepath.Join(dir, listName), entries))
	}

	m := &dataset.Manifest{
		Path:     dir,
		Train:    dataset.TrainListName,
		Val:      dataset.ValListName,
		LabelDir: dataset.LabelDirName,
		NC:       2,
		Names:    []string{"red", "blue"},
	}
	require.NoError(t, m.Write())
	return m
}

func testOptions(workers int) fetch.Options {
	return fetch.Options{
		Workers: workers,
		Timeout: 2 * time.Second,
		Retries: 1,
		Backoff: time.Millisecond,
	}
}

func TestMaterializeRespectsCap(t *testing.T) {
	server := imageServer(t)

	var trainRefs, valRefs []string
	for i := 0; i < 8; i++ {
		trainRefs = append(trainRefs, fmt.Sprintf("%s/1_145/image-%07d.png", server.URL, i))
	}
	for i := 0; i < 2; i++ {
		valRefs = append(valRefs, fmt.Sprintf("%s/1_145/val-%07d.png", server.URL, i))
	}
	src := buildSource(t, map[string][]string{"train": trainRefs, "val": valRefs})

	outDir := t.TempDir()
	m := New(testOptions(4), 3)
	local, stats, err := m.Materialize(context.Background(), src, outDir)
	require.NoError(t, err)

	train, err := dataset.ReadList(filepath.Join(local.Path, local.Train))
	require.NoError(t, err)
	val, err := dataset.ReadList(filepath.Join(local.Path, local.Val))
	require.NoError(t, err)

	// Never more than the cap per split, even with more URLs reachable.
	assert.Len(t, train, 3)
	assert.Len(t, val, 2)
	assert.Equal(t, 5, stats.Downloaded)
	assert.Equal(t, 5, stats.Skipped)

	// No more than cap images on disk either.
	files, err := os.ReadDir(filepath.Join(outDir, dataset.ImageDirName, "train"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(files), 3)

	// Every list entry resolves to a real image and label.
	for _, e := range append(train, val...) {
		assert.False(t, e.IsRemote())
		assert.FileExists(t, filepath.Join(local.Path, e.Ref))
		assert.FileExists(t, filepath.Join(local.Path, e.Label))
	}
}

func TestMaterializeDropsFailures(t *testing.T) {
	server := imageServer(t)

	src := buildSource(t, map[string][]string{
		"train": {
			server.URL + "/1_145/image-0000001.png",
			server.URL + "/missing.png",
			server.URL + "/listing.html",
		},
	})

	outDir := t.TempDir()
	m := New(testOptions(2), 10)
	local, stats, err := m.Materialize(context.Background(), src, outDir)
	require.NoError(t, err)

	train, err := dataset.ReadList(filepath.Join(local.Path, local.Train))
	require.NoError(t, err)
	require.Len(t, train, 1)
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 2, stats.Failed)
	assert.Zero(t, stats.Skipped)
}

func TestMaterializePreservesListOrder(t *testing.T) {
	server := imageServer(t)

	var refs []string
	for i := 0; i < 5; i++ {
		refs = append(refs, fmt.Sprintf("%s/1_145/image-%07d.png", server.URL, i))
	}
	src := buildSource(t, map[string][]string{"train": refs})

	// A single worker makes the in-order attempt sequence observable: the
	// first two list entries are the ones materialized.
	m := New(testOptions(1), 2)
	local, _, err := m.Materialize(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	train, err := dataset.ReadList(filepath.Join(local.Path, local.Train))
	require.NoError(t, err)
	require.Len(t, train, 2)
	assert.Contains(t, train[0].Ref, "image-0000000")
	assert.Contains(t, train[1].Ref, "image-0000001")
}

func TestMaterializeRewritesManifest(t *testing.T) {
	server := imageServer(t)
	src := buildSource(t, map[string][]string{
		"train": {server.URL + "/1_145/image-0000000.png"},
	})

	outDir := t.TempDir()
	m := New(testOptions(2), 10)
	local, _, err := m.Materialize(context.Background(), src, outDir)
	require.NoError(t, err)

	fromDisk, err := dataset.ReadManifest(outDir)
	require.NoError(t, err)
	assert.Equal(t, local, fromDisk)
	assert.Equal(t, src.NC, fromDisk.NC)
	assert.Equal(t, src.Names, fromDisk.Names)
	assert.NotEqual(t, src.Path, fromDisk.Path)
}
