package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"wharf/internal/services"
)

// probeResult describes what the remote end supports for a direct URL.
type probeResult struct {
	size   int64
	ranges bool
}

// probe asks for the first byte of the payload to learn the total size
// and whether the server honors byte ranges. A 206 with a Content-Range
// total means full segment fan-out; a plain 200 falls back to a single
// stream.
func (t *Transfer) probe(ctx context.Context, url string) (probeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeResult{}, services.Wrap(services.ErrValidation, services.StageTransfer, "probe", "build request", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return probeResult{}, wrapFetchErr("probe", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2))

	switch resp.StatusCode {
	case http.StatusPartialContent:
		size := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		return probeResult{size: size, ranges: true}, nil
	case http.StatusOK:
		return probeResult{size: resp.ContentLength, ranges: false}, nil
	default:
		return probeResult{}, classifyFetchStatus(resp.StatusCode, "probe")
	}
}

// parseContentRangeTotal extracts the total from "bytes 0-0/12345".
// Unknown totals ("bytes 0-0/*") come back as 0.
func parseContentRangeTotal(header string) int64 {
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 || idx == len(header)-1 {
		return 0
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil || total < 0 {
		return 0
	}
	return total
}

// classifyFetchStatus maps direct-URL HTTP failures onto the shared
// taxonomy. Unlike the host API, an auth or not-found answer on a direct
// URL means the short-lived link died, not the session, so the engine
// re-resolves and tries again.
func classifyFetchStatus(status int, op string) error {
	msg := fmt.Sprintf("fetch returned %d", status)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return services.Wrap(services.ErrLinkExpired, services.StageTransfer, op, msg, nil)
	case http.StatusTooManyRequests:
		return services.Wrap(services.ErrQuota, services.StageTransfer, op, msg, nil)
	case http.StatusRequestedRangeNotSatisfiable:
		return services.Wrap(services.ErrValidation, services.StageTransfer, op, msg, nil)
	default:
		return services.Wrap(services.ErrTransient, services.StageTransfer, op, msg, nil)
	}
}

// wrapFetchErr classifies transport-level failures.
func wrapFetchErr(op string, err error) error {
	marker := services.ErrTransient
	if errors.Is(err, context.DeadlineExceeded) {
		marker = services.ErrTimeout
	}
	return services.Wrap(marker, services.StageTransfer, op, "request failed", err)
}
