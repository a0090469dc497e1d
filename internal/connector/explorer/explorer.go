// Package explorer implements the blockchain-explorer connectors. Unlike the
// trading exchanges these are plain JSON-over-HTTPS APIs queried per address,
// so every connector shares the same small HTTP plumbing and differs only in
// endpoint shapes and failure policy.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

const (
	explorerRetries   = 5
	bestEffortRetries = 15
)

var errMalformed = errors.New("malformed explorer response")

// httpError carries a non-2xx response for classification.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// getJSON performs one GET request and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, rawurl string, params url.Values, out any) error {
	u := rawurl
	if len(params) > 0 {
		u = rawurl + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return &httpError{status: resp.StatusCode, body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(errMalformed, "decode body: %v", err)
	}
	return nil
}

// classifyHTTP is the classification shared by all explorer connectors:
// rate limiting and outages retry, everything else aborts the call.
func classifyHTTP(err error) retrier.Kind {
	if errors.Is(err, errMalformed) {
		return retrier.Fatal
	}

	var httpErr *httpError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.status == http.StatusTooManyRequests:
			return retrier.RateLimited
		case httpErr.status >= 500:
			return retrier.Unavailable
		}
		return retrier.Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrier.Unavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retrier.Unavailable
	}
	return retrier.Unavailable
}
