// Package downloader saves patched media URLs to disk with chunked range
// requests, retry/backoff, resume from a temporary file, and optional rate
// limiting.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tubeget/tubeget/internal/logger"
)

const (
	defaultChunkSizeBytes  = 1 << 20
	defaultMaxRetries      = 3
	temporaryFileSuffix    = ".tmp"
	initialBackoffDuration = 200 * time.Millisecond
	maxBackoffDuration     = 3 * time.Second
	copyBufferSizeBytes    = 32 * 1024

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
)

var log = logger.WithComponent(logger.ComponentDownload)

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader fetches media files with chunked HTTP range requests, simple
// retry/backoff, and optional rate limiting.
type Downloader struct {
	Client       *http.Client
	ProgressFunc func(Progress)

	chunkSize    int64
	maxRetries   int
	rateLimitBps int64
}

// New creates a downloader. If client is nil a default http.Client is used.
// rateLimitBps=0 disables limiting.
func New(client *http.Client, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		Client:       client,
		ProgressFunc: progressFunc,
		chunkSize:    defaultChunkSizeBytes,
		maxRetries:   defaultMaxRetries,
		rateLimitBps: rateLimitBps,
	}
}

func isGoogleVideoHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Host)
	return strings.HasSuffix(h, ".googlevideo.com") || h == "googlevideo.com"
}

// setDownloadHeaders applies the browser-like header set media hosts expect.
// Accept-Encoding is pinned to identity so Content-Length matches the bytes
// written to disk.
func setDownloadHeaders(req *http.Request, rangeVal string) {
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	if !isGoogleVideoHost(req.URL.String()) {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
	if rangeVal != "" {
		req.Header.Set("Range", rangeVal)
	}
}

// totalFromHeaders extracts the full resource size from Content-Range
// ("bytes 0-1/N") or, failing that, Content-Length.
func totalFromHeaders(h http.Header) (int64, bool) {
	if cr := h.Get("Content-Range"); cr != "" {
		if parts := strings.Split(cr, "/"); len(parts) == 2 {
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return v, true
			}
		}
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// detectTotalSize probes the resource size. googlevideo hosts reject HEAD, so
// those go straight to a ranged GET; everything else tries HEAD first.
func (d *Downloader) detectTotalSize(ctx context.Context, urlStr string) (int64, error) {
	probe := func(method string) (int64, bool, error) {
		req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
		if err != nil {
			return 0, false, err
		}
		setDownloadHeaders(req, "bytes=0-1")
		resp, err := d.Client.Do(req)
		if err != nil {
			return 0, false, err
		}
		defer func() { _ = resp.Body.Close() }()
		log.Trace("size probe", map[string]any{"method": method, "status": resp.StatusCode})
		v, ok := totalFromHeaders(resp.Header)
		return v, ok, nil
	}

	if !isGoogleVideoHost(urlStr) {
		if v, ok, err := probe("HEAD"); err == nil && ok {
			return v, nil
		}
	}
	v, ok, err := probe("GET")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("cannot determine total size")
	}
	return v, nil
}

// sleepForRate enforces a simple rate limit based on bytes written this step.
func (d *Downloader) sleepForRate(written int64) {
	if d.rateLimitBps <= 0 || written <= 0 {
		return
	}
	dur := time.Duration(int64(time.Second) * written / d.rateLimitBps)
	if dur > 0 {
		time.Sleep(dur)
	}
}

// fetchChunk requests one byte range with retry and exponential backoff.
func (d *Downloader) fetchChunk(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoffDuration
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
		if err != nil {
			return nil, err
		}
		setDownloadHeaders(req, fmt.Sprintf("bytes=%d-%d", start, end))

		resp, err := d.Client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("HTTP status %d", resp.StatusCode)
		}
		log.Debug("chunk request failed", map[string]any{
			"attempt": attempt + 1,
			"range":   fmt.Sprintf("%d-%d", start, end),
			"error":   lastErr.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoffDuration {
			backoff = maxBackoffDuration
		}
	}
	return nil, fmt.Errorf("download chunk failed: %w", lastErr)
}

// Download fetches urlStr into outputPath. An existing outputPath+".tmp" file
// is resumed with a Range offset; the temp file is renamed only after the
// download completes.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string) error {
	tmpPath := outputPath + temporaryFileSuffix
	var outFile *os.File
	var err error
	if _, statErr := os.Stat(tmpPath); statErr == nil {
		outFile, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open tmp for append: %w", err)
		}
	} else {
		outFile, err = os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
	}
	defer func() { _ = outFile.Close() }()

	currentInfo, err := outFile.Stat()
	if err != nil {
		return fmt.Errorf("stat tmp file: %w", err)
	}
	downloaded := currentInfo.Size()

	totalSize, err := d.detectTotalSize(ctx, urlStr)
	if err != nil {
		log.Warn("could not determine total size", map[string]any{"error": err.Error()})
		totalSize = 0
	}
	log.Info("starting download", map[string]any{
		"output":  outputPath,
		"total":   totalSize,
		"resumed": downloaded,
	})

	for downloaded < totalSize || totalSize == 0 {
		start := downloaded
		end := start + d.chunkSize - 1
		if totalSize > 0 && end >= totalSize {
			end = totalSize - 1
		}

		resp, err := d.fetchChunk(ctx, urlStr, start, end)
		if err != nil {
			return err
		}

		buf := make([]byte, copyBufferSizeBytes)
		chunkRead := int64(0)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := outFile.Write(buf[:n]); werr != nil {
					_ = resp.Body.Close()
					return fmt.Errorf("write chunk: %w", werr)
				}
				downloaded += int64(n)
				chunkRead += int64(n)
				if d.ProgressFunc != nil {
					p := Progress{TotalSize: totalSize, DownloadedSize: downloaded}
					if totalSize > 0 {
						p.Percent = float64(downloaded) / float64(totalSize) * 100
					}
					d.ProgressFunc(p)
				}
				d.sleepForRate(int64(n))
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				_ = resp.Body.Close()
				return fmt.Errorf("read response body: %w", rerr)
			}
		}
		_ = resp.Body.Close()

		if totalSize == 0 {
			// Size unknown; keep requesting bounded chunks until the
			// server stops returning data.
			if chunkRead == 0 {
				break
			}
			continue
		}
		if downloaded >= totalSize {
			break
		}
	}

	if fi, err := os.Stat(tmpPath); err == nil && fi.Size() == 0 {
		_ = os.Remove(tmpPath)
		return errors.New("empty download: 0 bytes written")
	}
	return os.Rename(tmpPath, outputPath)
}
