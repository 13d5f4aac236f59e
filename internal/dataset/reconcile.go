package dataset

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vk/yolosetgo/internal/ctxlog"
)

// ReconcileStats reports what a reconciliation pass kept and dropped.
type ReconcileStats struct {
	Kept    int
	Dropped int
}

// Reconcile recomputes a dataset directory's lists from what is actually on
// disk. A run interrupted mid-way can leave list entries pointing at label
// or image files that were never written; those entries are dropped, the
// lists rewritten, and the manifest regenerated wholesale. This must run
// before the manifest of an interrupted run is trusted.
func Reconcile(ctx context.Context, dir string) (*Manifest, *ReconcileStats, error) {
	logger := ctxlog.FromContext(ctx)

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	stats := &ReconcileStats{}

	for _, split := range Splits {
		listPath := filepath.Join(dir, manifest.ListFile(split))
		entries, err := ReadList(listPath)
		if err != nil {
			return nil, nil, err
		}

		kept := entries[:0]
		for _, e := range entries {
			if !resolved(dir, e) {
				logger.Warn("Dropping dangling entry.", "split", split, "ref", e.Ref)
				stats.Dropped++
				continue
			}
			kept = append(kept, e)
		}
		stats.Kept += len(kept)

		if err := WriteList(listPath, kept); err != nil {
			return nil, nil, err
		}
	}

	// The manifest itself never holds counts, but rewriting it marks the
	// directory as reconciled against the current on-disk state.
	manifest.Path = dir
	if abs, err := filepath.Abs(dir); err == nil {
		manifest.Path = abs
	}
	if err := manifest.Write(); err != nil {
		return nil, nil, err
	}

	logger.Info("Dataset reconciled.", "dir", dir, "kept", stats.Kept, "dropped", stats.Dropped)
	return manifest, stats, nil
}

// resolved reports whether every file an entry references exists. Remote
// refs only need their label file; local refs need the image too.
func resolved(dir string, e Entry) bool {
	if !exists(filepath.Join(dir, e.Label)) {
		return false
	}
	if e.IsRemote() {
		return true
	}
	ref := e.Ref
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(dir, ref)
	}
	return exists(ref)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
