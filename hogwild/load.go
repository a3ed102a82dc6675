package hogwild

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// OpenHogwildLoad resolves a hogwild_load control message's target: a
// local path is opened directly; an http(s) URL is fetched with
// retry/backoff, since a remote cache file is not assumed reachable on the
// first try the way a local one is. Callers must Close the returned reader.
func OpenHogwildLoad(ctx context.Context, client *retryablehttp.Client, target string) (io.ReadCloser, error) {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		f, err := os.Open(target)
		if err != nil {
			return nil, fmt.Errorf("hogwild: opening load path %q: %w", target, err)
		}
		return f, nil
	}

	if client == nil {
		client = retryablehttp.NewClient()
		client.Logger = nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("hogwild: building request for %q: %w", target, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hogwild: fetching %q: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("hogwild: fetching %q: unexpected status %s", target, resp.Status)
	}
	return resp.Body, nil
}
