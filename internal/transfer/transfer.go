package transfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"wharf/internal/config"
	"wharf/internal/logging"
	"wharf/internal/services"
)

const (
	userAgent        = "wharf/0.1.0"
	copyBufferBytes  = 64 << 10
	mergeBufferBytes = 4 << 20
)

// Request describes one transfer attempt against a direct URL.
type Request struct {
	URL      string
	Filename string
	Dir      string
	Size     int64
	Segments int
}

// Progress is a point-in-time view of a running transfer.
type Progress struct {
	Downloaded int64
	Total      int64
	SpeedBPS   int64
}

// ProgressFunc receives sampled progress while a fetch runs and one
// final sample when it stops.
type ProgressFunc func(Progress)

// Transfer fetches direct URLs with segmented range requests, resuming
// from whatever part files a previous attempt left behind. The limiter,
// when set, is shared by every segment of every task so a configured
// speed cap holds globally; its burst must cover the copy buffer.
type Transfer struct {
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	ioTimeout time.Duration
	tick      time.Duration
	verify    bool
}

// New builds a Transfer. A nil limiter disables throttling.
func New(cfg *config.Config, limiter *rate.Limiter, logger *slog.Logger) *Transfer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transfer{
		client:    &http.Client{},
		limiter:   limiter,
		logger:    logging.NewComponentLogger(logger, "transfer"),
		ioTimeout: cfg.IOTimeout(),
		tick:      500 * time.Millisecond,
		verify:    cfg.Engine.VerifySize,
	}
}

// Fetch downloads req.URL into req.Dir and returns the assembled file
// path and the byte count on disk. Existing part files are continued,
// not restarted, so a retried attempt only pays for the missing ranges.
func (t *Transfer) Fetch(ctx context.Context, req Request, onProgress ProgressFunc) (string, int64, error) {
	if req.URL == "" {
		return "", 0, services.Wrap(services.ErrValidation, services.StageTransfer, "fetch", "url required", nil)
	}
	if req.Filename == "" {
		return "", 0, services.Wrap(services.ErrValidation, services.StageTransfer, "fetch", "filename required", nil)
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return "", 0, services.Wrap(services.ErrConfiguration, services.StageTransfer, "fetch", "create incomplete dir", err)
	}

	probed, err := t.probe(ctx, req.URL)
	if err != nil {
		return "", 0, err
	}
	size := probed.size
	if size <= 0 {
		size = req.Size
	}
	segCount := req.Segments
	if !probed.ranges {
		segCount = 1
	}
	segments := buildSegments(size, segCount)

	var downloaded int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if onProgress != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.trackProgress(ctx, stop, &downloaded, size, onProgress)
		}()
	}

	sole := len(segments) == 1
	g, gctx := errgroup.WithContext(ctx)
	for _, seg := range segments {
		seg := seg
		g.Go(func() error {
			return t.fetchSegment(gctx, req, seg, probed.ranges, sole, &downloaded)
		})
	}
	err = g.Wait()
	close(stop)
	wg.Wait()
	if onProgress != nil {
		onProgress(Progress{Downloaded: atomic.LoadInt64(&downloaded), Total: size})
	}
	if err != nil {
		return "", atomic.LoadInt64(&downloaded), err
	}

	final, err := t.assemble(req.Dir, req.Filename, segments)
	if err != nil {
		return "", atomic.LoadInt64(&downloaded), err
	}
	info, err := os.Stat(final)
	if err != nil {
		return "", 0, services.Wrap(services.ErrTransient, services.StageTransfer, "fetch", "stat assembled file", err)
	}
	expected := req.Size
	if size > 0 {
		expected = size
	}
	if t.verify && expected > 0 && info.Size() != expected {
		msg := fmt.Sprintf("assembled %d bytes, expected %d", info.Size(), expected)
		return "", info.Size(), services.Wrap(services.ErrValidation, services.StageTransfer, "fetch", msg, nil)
	}
	return final, info.Size(), nil
}

// fetchSegment downloads one byte range into its part file, resuming
// from the bytes already on disk. A stalled read cancels the request
// after the I/O timeout so a dead connection cannot pin the worker.
func (t *Transfer) fetchSegment(ctx context.Context, req Request, seg segment, ranges, sole bool, counter *int64) error {
	part := partPath(req.Dir, req.Filename, seg.index)
	op := fmt.Sprintf("segment %d", seg.index)

	var have int64
	if info, err := os.Stat(part); err == nil {
		have = info.Size()
	}
	length := seg.length()
	switch {
	case length >= 0 && have == length:
		atomic.AddInt64(counter, have)
		return nil
	case length >= 0 && have > length:
		// Oversized part means a corrupt previous attempt.
		if err := os.Truncate(part, 0); err != nil {
			return services.Wrap(services.ErrTransient, services.StageTransfer, op, "truncate corrupt part", err)
		}
		have = 0
	case !ranges && have > 0:
		// No range support means no resume.
		if err := os.Truncate(part, 0); err != nil {
			return services.Wrap(services.ErrTransient, services.StageTransfer, op, "truncate part", err)
		}
		have = 0
	}
	atomic.AddInt64(counter, have)

	segCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(segCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, services.StageTransfer, op, "build request", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	start := seg.start + have
	switch {
	case seg.end >= 0:
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, seg.end))
	case ranges && start > 0:
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return wrapFetchErr(op, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if !sole {
			return services.Wrap(services.ErrTransient, services.StageTransfer, op, "server ignored range request", nil)
		}
		if have > 0 {
			// Full-body replay; drop the resumed prefix.
			atomic.AddInt64(counter, -have)
			if err := os.Truncate(part, 0); err != nil {
				return services.Wrap(services.ErrTransient, services.StageTransfer, op, "truncate part", err)
			}
			have = 0
		}
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return classifyFetchStatus(resp.StatusCode, op)
	}

	file, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return services.Wrap(services.ErrTransient, services.StageTransfer, op, "open part file", err)
	}

	stall := time.AfterFunc(t.ioTimeout, cancel)
	buf := make([]byte, copyBufferBytes)
	var copyErr error
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if t.limiter != nil {
				if werr := t.limiter.WaitN(segCtx, n); werr != nil {
					copyErr = wrapFetchErr(op, werr)
					break
				}
			}
			// Reset after the limiter wait so a configured speed cap is
			// never mistaken for a dead connection.
			stall.Reset(t.ioTimeout)
			if _, werr := file.Write(buf[:n]); werr != nil {
				copyErr = services.Wrap(services.ErrTransient, services.StageTransfer, op, "write part file", werr)
				break
			}
			atomic.AddInt64(counter, int64(n))
			have += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if segCtx.Err() != nil && ctx.Err() == nil {
				copyErr = services.Wrap(services.ErrTimeout, services.StageTransfer, op, "read stalled", rerr)
			} else {
				copyErr = wrapFetchErr(op, rerr)
			}
			break
		}
	}
	stall.Stop()
	if cerr := file.Close(); cerr != nil && copyErr == nil {
		copyErr = services.Wrap(services.ErrTransient, services.StageTransfer, op, "close part file", cerr)
	}
	if copyErr != nil {
		return copyErr
	}
	if length >= 0 && have != length {
		msg := fmt.Sprintf("got %d bytes, expected %d", have, length)
		return services.Wrap(services.ErrValidation, services.StageTransfer, op, msg, nil)
	}
	return nil
}

// assemble concatenates the part files in range order. A single part is
// just renamed into place.
func (t *Transfer) assemble(dir, filename string, segments []segment) (string, error) {
	final := filepath.Join(dir, filename)
	if len(segments) == 1 {
		if err := os.Rename(partPath(dir, filename, 0), final); err != nil {
			return "", services.Wrap(services.ErrTransient, services.StageTransfer, "assemble", "rename part", err)
		}
		return final, nil
	}

	out, err := os.Create(final)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, services.StageTransfer, "assemble", "create output", err)
	}
	writer := bufio.NewWriterSize(out, mergeBufferBytes)
	for _, seg := range segments {
		part, err := os.Open(partPath(dir, filename, seg.index))
		if err != nil {
			out.Close()
			return "", services.Wrap(services.ErrTransient, services.StageTransfer, "assemble", "open part", err)
		}
		_, err = io.Copy(writer, part)
		part.Close()
		if err != nil {
			out.Close()
			return "", services.Wrap(services.ErrTransient, services.StageTransfer, "assemble", "copy part", err)
		}
	}
	if err := writer.Flush(); err != nil {
		out.Close()
		return "", services.Wrap(services.ErrTransient, services.StageTransfer, "assemble", "flush output", err)
	}
	if err := out.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, services.StageTransfer, "assemble", "close output", err)
	}
	for _, seg := range segments {
		if err := os.Remove(partPath(dir, filename, seg.index)); err != nil {
			t.logger.Warn("part cleanup failed",
				logging.String("path", partPath(dir, filename, seg.index)),
				logging.Error(err))
		}
	}
	return final, nil
}

// CleanupParts removes the part files and any assembled payload left in
// the incomplete directory for filename. Cancel and delete use this;
// pause deliberately does not.
func CleanupParts(dir, filename string) error {
	if filename == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, filename+".part*"))
	if err != nil {
		return err
	}
	matches = append(matches, filepath.Join(dir, filename))
	var firstErr error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func partPath(dir, filename string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.part%d", filename, index))
}
