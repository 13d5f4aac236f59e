// Package localize turns an assembled, URL-referenced dataset into a
// self-contained local one: a bounded sample of images is downloaded,
// decode-verified, and the manifest rewritten to local paths. Entries that
// fail or fall outside the per-split cap are dropped, never left dangling.
package localize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/vk/yolosetgo/internal/ctxlog"
	"github.com/vk/yolosetgo/internal/dataset"
	"github.com/vk/yolosetgo/internal/fetch"
)

// Stats summarizes one materialization run across both splits.
type Stats struct {
	Downloaded int
	Failed     int // download or decode failures
	Skipped    int // entries beyond the per-split cap
}

// Materializer downloads a capped sample of a dataset's images.
type Materializer struct {
	client *http.Client
	opts   fetch.Options

	// MaxPerSplit caps how many images are materialized per split.
	MaxPerSplit int
}

// New builds a Materializer sharing the verifier's network tuning.
func New(opts fetch.Options, maxPerSplit int) *Materializer {
	return &Materializer{
		client:      fetch.NewClient(opts.Timeout),
		opts:        opts,
		MaxPerSplit: maxPerSplit,
	}
}

// Materialize downloads up to MaxPerSplit images per split from the source
// dataset into outDir and writes a rewritten manifest referencing only the
// images that actually resolved. Individual download failures reduce output
// volume; only output-directory I/O failures are fatal.
func (m *Materializer) Materialize(ctx context.Context, src *dataset.Manifest, outDir string) (*dataset.Manifest, *Stats, error) {
	logger := ctxlog.FromContext(ctx)
	stats := &Stats{}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving local dataset dir: %w", err)
	}

	for _, split := range dataset.Splits {
		for _, sub := range []string{dataset.ImageDirName, dataset.LabelDirName} {
			if err := os.MkdirAll(filepath.Join(absOut, sub, split), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating local dataset directory: %w", err)
			}
		}
	}

	for _, split := range dataset.Splits {
		entries, err := dataset.ReadList(filepath.Join(src.Path, src.ListFile(split)))
		if err != nil {
			return nil, nil, err
		}

		local, err := m.materializeSplit(ctx, src, entries, split, absOut, stats)
		if err != nil {
			return nil, nil, err
		}

		listName := dataset.TrainListName
		if split == "val" {
			listName = dataset.ValListName
		}
		if err := dataset.WriteList(filepath.Join(absOut, listName), local); err != nil {
			return nil, nil, err
		}
		logger.Info("Split materialized.", "split", split, "requested", len(entries), "resolved", len(local))
	}

	manifest := &dataset.Manifest{
		Path:     absOut,
		Train:    dataset.TrainListName,
		Val:      dataset.ValListName,
		LabelDir: dataset.LabelDirName,
		NC:       src.NC,
		Names:    src.Names,
	}
	if err := manifest.Write(); err != nil {
		return nil, nil, err
	}

	return manifest, stats, nil
}

// materializeSplit attempts downloads in original list order under the
// shared worker limit. Each success commits against a mutex-guarded counter;
// when the counter reaches the cap the split context is cancelled and
// pending fetches are abandoned, not awaited for their results.
func (m *Materializer) materializeSplit(ctx context.Context, src *dataset.Manifest, entries []dataset.Entry, split, outDir string, stats *Stats) ([]dataset.Entry, error) {
	logger := ctxlog.FromContext(ctx).With("split", split)

	splitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := new(errgroup.Group)
	g.SetLimit(m.opts.Workers)

	var mu sync.Mutex
	committed := 0
	failed := 0
	localRefs := make([]string, len(entries))

	for i, entry := range entries {
		mu.Lock()
		full := committed >= m.MaxPerSplit
		mu.Unlock()
		if full || splitCtx.Err() != nil {
			break
		}

		i, entry := i, entry
		g.Go(func() error {
			if splitCtx.Err() != nil {
				return nil
			}

			name := imageFileName(entry)
			destRel := filepath.Join(dataset.ImageDirName, split, name)
			err := m.download(splitCtx, entry.Ref, filepath.Join(outDir, destRel))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if splitCtx.Err() != nil {
					// Abandoned after the cap was reached, not a failure.
					return nil
				}
				logger.Warn("Dropping entry, download failed.", "url", entry.Ref, "error", err)
				failed++
				return nil
			}
			if committed >= m.MaxPerSplit {
				os.Remove(filepath.Join(outDir, destRel))
				return nil
			}
			committed++
			localRefs[i] = destRel
			if committed >= m.MaxPerSplit {
				cancel()
			}
			return nil
		})
	}
	g.Wait()

	var local []dataset.Entry
	for i, entry := range entries {
		if localRefs[i] == "" {
			continue
		}
		if err := copyFile(filepath.Join(src.Path, entry.Label), filepath.Join(outDir, entry.Label)); err != nil {
			return nil, err
		}
		local = append(local, dataset.Entry{Ref: localRefs[i], Label: entry.Label})
	}

	stats.Downloaded += len(local)
	stats.Failed += failed
	stats.Skipped += len(entries) - len(local) - failed
	return local, nil
}

// download fetches one image, verifies the payload decodes as an image, and
// writes it to destPath.
func (m *Materializer) download(ctx context.Context, url, destPath string) error {
	resp, err := fetch.Do(ctx, m.client, m.opts, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if _, err := imaging.Decode(bytes.NewReader(body)); err != nil {
		return fmt.Errorf("payload is not a decodable image: %w", err)
	}

	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}

// imageFileName derives the local image file name from the entry's label
// name, which is unique across imagesets, keeping the original URL extension.
func imageFileName(entry dataset.Entry) string {
	base := strings.TrimSuffix(filepath.Base(entry.Label), ".txt")
	ext := path.Ext(strings.SplitN(path.Base(entry.Ref), "?", 2)[0])
	if ext == "" {
		ext = ".jpg"
	}
	return base + ext
}

func copyFile(srcPath, destPath string) error {
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("copying label file: %w", err)
	}
	if err := os.WriteFile(destPath, raw, 0o644); err != nil {
		return fmt.Errorf("copying label file: %w", err)
	}
	return nil
}
