package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultLivenessTimeout = 3 * time.Second

// Ping probes whether the backend is reachable at all. Any HTTP status,
// including an error status, counts as reachable: a server that answers 500
// is present, just unhealthy. Only a transport failure or the timeout
// produces ErrServiceUnavailable.
func Ping(ctx context.Context, baseURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultLivenessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return errors.Wrap(err, "[Ping] building probe request")
	}

	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return errors.Wrapf(ErrServiceUnavailable, "[Ping] %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
