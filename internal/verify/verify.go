// Package verify checks the liveness and content type of remote image URLs
// under a bounded worker pool.
package verify

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/vk/yolosetgo/internal/ctxlog"
	"github.com/vk/yolosetgo/internal/fetch"
)

// Result is the verification outcome for a single URL.
type Result struct {
	URL         string
	Reachable   bool
	StatusCode  int
	ContentType string
	Reason      string // empty when reachable
}

// Verifier performs lightweight existence checks against remote URLs.
type Verifier struct {
	client *http.Client
	opts   fetch.Options
}

// New builds a Verifier from the shared network tuning.
func New(opts fetch.Options) *Verifier {
	return &Verifier{
		client: fetch.NewClient(opts.Timeout),
		opts:   opts,
	}
}

// Verify checks every URL and returns one Result per input URL, in input
// order regardless of completion order. Checks run on a pool of
// opts.Workers goroutines.
func (v *Verifier) Verify(ctx context.Context, urls []string) []Result {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Verifying remote URLs.", "count", len(urls), "workers", v.opts.Workers)

	results := make([]Result, len(urls))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := v.opts.Workers
	if workers > len(urls) {
		workers = len(urls)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go v.worker(ctx, jobs, urls, results, &wg, w)
	}

	for i := range urls {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// worker is the processing loop for a single concurrent worker. Results are
// written into the index owned by each job, which reassembles input order
// for free.
func (v *Verifier) worker(ctx context.Context, jobs chan int, urls []string, results []Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)

	for i := range jobs {
		if err := ctx.Err(); err != nil {
			results[i] = Result{URL: urls[i], Reason: err.Error()}
			continue
		}
		results[i] = v.check(ctx, urls[i])
		logger.Debug("URL checked.", "url", urls[i], "reachable", results[i].Reachable)
	}
}

// check issues a single HEAD existence check, retrying transient failures.
func (v *Verifier) check(ctx context.Context, url string) Result {
	resp, err := fetch.Do(ctx, v.client, v.opts, func() (*http.Request, error) {
		return http.NewRequest(http.MethodHead, url, nil)
	})
	if err != nil {
		return Result{URL: url, Reason: err.Error()}
	}
	defer resp.Body.Close()

	result := Result{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result
	}
	if !isImage(result.ContentType) {
		result.Reason = fmt.Sprintf("content type %q is not an image", result.ContentType)
		return result
	}

	result.Reachable = true
	return result
}

func isImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
