// Package tubeget resolves YouTube watch pages into playable media URLs and
// downloads them. The high-level Extractor drives the whole pipeline: video
// ID parsing, innertube metadata, stream manifest parsing, player script
// descrambling, and chunked downloading.
package tubeget

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tubeget/tubeget/client"
	"github.com/tubeget/tubeget/downloader"
	"github.com/tubeget/tubeget/errs"
	"github.com/tubeget/tubeget/internal/logger"
	"github.com/tubeget/tubeget/internal/mimeext"
	"github.com/tubeget/tubeget/internal/sanitize"
	"github.com/tubeget/tubeget/types"
	"github.com/tubeget/tubeget/youtube/cipher"
	"github.com/tubeget/tubeget/youtube/formats"
	"github.com/tubeget/tubeget/youtube/innertube"
	"github.com/tubeget/tubeget/youtube/watchpage"
)

var log = logger.WithComponent(logger.ComponentApp)

// Progress describes current progress of an ongoing download.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Options contains configuration for a single extraction or download.
//
// Use chainable setters on Extractor to populate these options.
type Options struct {
	FormatSelector  string
	DesiredExt      string
	OutputPath      string
	HTTPClient      *http.Client
	ProgressFunc    func(Progress)
	RateLimitBps    int64
	ITClientName    string
	ITClientVersion string
}

// Extractor provides a high-level API for retrieving metadata, resolving
// media URLs, and downloading YouTube videos. One Extractor can serve many
// videos; compiled player script programs are cached by script content hash.
type Extractor struct {
	options Options
	ciphers *cipher.Cache
}

// New creates an Extractor with default options. The descrambler runs with
// the JavaScript fallback enabled so unrecognized player script revisions
// still resolve.
func New() *Extractor {
	return &Extractor{ciphers: cipher.NewCache(cipher.WithJSFallback())}
}

// WithFormat sets a format selector and optional desired extension.
// Examples: "itag=22", "best", "height<=480". Extension is case-insensitive.
func (e *Extractor) WithFormat(quality, ext string) *Extractor {
	e.options.FormatSelector = quality
	e.options.DesiredExt = strings.TrimPrefix(strings.ToLower(ext), ".")
	return e
}

// WithHTTPClient sets a custom HTTP client for all network calls.
func (e *Extractor) WithHTTPClient(c *http.Client) *Extractor {
	e.options.HTTPClient = c
	return e
}

// WithProgress registers a callback that receives download progress updates.
func (e *Extractor) WithProgress(f func(Progress)) *Extractor {
	e.options.ProgressFunc = f
	return e
}

// WithOutputPath sets the output file path. If empty, a safe filename is
// derived from the video title and mime extension. If a directory path is
// given, the derived filename is placed inside it.
func (e *Extractor) WithOutputPath(path string) *Extractor {
	e.options.OutputPath = path
	return e
}

// WithRateLimit sets a download rate limit in bytes per second. Zero disables
// limiting.
func (e *Extractor) WithRateLimit(bytesPerSecond int64) *Extractor {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	e.options.RateLimitBps = bytesPerSecond
	return e
}

// WithInnertubeClient sets the innertube client name and version to use.
func (e *Extractor) WithInnertubeClient(name, version string) *Extractor {
	e.options.ITClientName = strings.TrimSpace(name)
	e.options.ITClientVersion = strings.TrimSpace(version)
	return e
}

// webClient builds the retrying HTTP client used for watch pages and player
// scripts, honoring a caller-supplied http.Client.
func (e *Extractor) webClient() *client.Client {
	c := client.New()
	if e.options.HTTPClient != nil {
		c.HTTPClient = e.options.HTTPClient
	}
	return c
}

func (e *Extractor) innertubeClient() *innertube.Client {
	it := innertube.New(e.webClient().HTTPClient)
	name, ver := e.options.ITClientName, e.options.ITClientVersion
	if name != "" || ver != "" {
		it.WithClient(name, ver)
	}
	return it
}

// fetchText GETs a URL and returns the response body as a string.
func fetchText(c *client.Client, url string) (string, error) {
	resp, err := c.Get(url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("GET %s: HTTP status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// availabilityError maps the innertube playability section plus watch page
// probes onto the package sentinel errors. A nil return means playable.
func availabilityError(status types.PlayabilityStatus, html string) error {
	s := strings.ToUpper(status.Status)
	reason := strings.ToLower(status.Reason)
	switch s {
	case "", "OK":
		return nil
	case "ERROR":
		if strings.Contains(reason, "geograph") || strings.Contains(reason, "available in your country") {
			return errs.ErrGeoBlocked
		}
		if strings.Contains(reason, "rate limit") || strings.Contains(reason, "quota") {
			return errs.ErrRateLimited
		}
		return errs.ErrVideoUnavailable
	case "LOGIN_REQUIRED":
		if watchpage.IsPrivate(html) || strings.Contains(reason, "private") {
			return errs.ErrPrivate
		}
		return errs.ErrAgeRestricted
	case "UNPLAYABLE":
		if !watchpage.RecordingAvailable(html) {
			return errs.ErrLiveStream
		}
		if watchpage.IsPrivate(html) || strings.Contains(reason, "private") {
			return errs.ErrPrivate
		}
		if watchpage.IsAgeRestricted(html) {
			return errs.ErrAgeRestricted
		}
		return errs.ErrVideoUnavailable
	case "LIVE_STREAM_OFFLINE":
		return errs.ErrLiveStream
	}
	return nil
}

// needsPatching reports whether any manifest entry still lacks a direct URL.
func needsPatching(manifest []types.Format) bool {
	for _, f := range manifest {
		if f.URL == "" {
			return true
		}
	}
	return false
}

// GetVideo runs the full extraction pipeline for one watch URL: video ID,
// innertube player response, availability mapping, manifest parsing, and
// signature patching against the current player script. Every returned
// format carries a direct media URL.
func (e *Extractor) GetVideo(ctx context.Context, videoURL string) (*types.VideoInfo, error) {
	videoID, err := watchpage.VideoID(videoURL)
	if err != nil {
		return nil, err
	}
	log.Debug("resolving video", map[string]any{"id": videoID})

	httpc := e.webClient()
	it := e.innertubeClient()
	pr, err := it.GetPlayerResponse(videoID)
	if err != nil {
		return nil, fmt.Errorf("get player response: %w", err)
	}
	status := pr.Status()

	// The watch page backs the availability probes, the publish date, and
	// the player script URL.
	html, err := fetchText(httpc, watchpage.WatchURL(videoID))
	if err != nil {
		return nil, fmt.Errorf("fetch watch page: %w", err)
	}
	if err := availabilityError(status, html); err != nil {
		return nil, err
	}

	manifest := formats.ParseFormats(pr)
	if len(manifest) == 0 {
		return nil, errs.ErrNoFormats
	}

	if needsPatching(manifest) {
		jsURL, err := watchpage.JSURL(html)
		if err != nil {
			return nil, err
		}
		js, err := fetchText(httpc, jsURL)
		if err != nil {
			return nil, fmt.Errorf("fetch player script: %w", err)
		}
		ciph, err := e.ciphers.Get(js)
		if err != nil {
			return nil, fmt.Errorf("compile player script: %w", err)
		}
		if err := formats.ApplySignatures(manifest, status, ciph); err != nil {
			return nil, err
		}
	}

	info := &types.VideoInfo{
		ID:      videoID,
		Title:   pr.VideoDetails.Title,
		Author:  pr.VideoDetails.Author,
		Formats: manifest,
	}
	if secs, err := strconv.Atoi(pr.VideoDetails.LengthSeconds); err == nil {
		info.Duration = secs
	}
	if d := watchpage.PublishDate(html); !d.IsZero() {
		info.PublishDate = d.Format("2006-01-02")
	}
	return info, nil
}

// ResolveURL resolves one watch URL to the final media URL of the selected
// format, along with the video info.
func (e *Extractor) ResolveURL(ctx context.Context, videoURL string) (string, *types.VideoInfo, error) {
	info, err := e.GetVideo(ctx, videoURL)
	if err != nil {
		return "", nil, err
	}
	sel := formats.SelectFormat(info.Formats, e.options.FormatSelector, e.options.DesiredExt)
	if sel == nil {
		return "", nil, errs.ErrNoFormats
	}
	return sel.URL, info, nil
}

// outputFilePath resolves the target path for a download. An empty configured
// path derives a safe filename from the title; a directory path gets the
// derived filename joined onto it.
func (e *Extractor) outputFilePath(title, mimeType string) string {
	ext := mimeext.ExtFromMime(mimeType)
	if strings.TrimSpace(title) == "" {
		title = "video"
	}
	name := sanitize.ToSafeFilename(title, ext)

	path := e.options.OutputPath
	if path == "" {
		return name
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return filepath.Join(path, name)
	}
	return path
}

// Download resolves a watch URL and saves the selected format to disk,
// returning the video info.
func (e *Extractor) Download(ctx context.Context, videoURL string) (*types.VideoInfo, error) {
	info, err := e.GetVideo(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	sel := formats.SelectFormat(info.Formats, e.options.FormatSelector, e.options.DesiredExt)
	if sel == nil {
		return nil, errs.ErrNoFormats
	}

	dl := downloader.New(e.options.HTTPClient, func(p downloader.Progress) {
		if e.options.ProgressFunc != nil {
			e.options.ProgressFunc(Progress{TotalSize: p.TotalSize, DownloadedSize: p.DownloadedSize, Percent: p.Percent})
		}
	}, e.options.RateLimitBps)

	outputPath := e.outputFilePath(info.Title, sel.MimeType)
	log.Info("downloading", map[string]any{"id": info.ID, "itag": sel.Itag, "output": outputPath})
	if err := dl.Download(ctx, sel.URL, outputPath); err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return info, nil
}

// GetPlaylistItems returns the first page of playlist items.
func (e *Extractor) GetPlaylistItems(ctx context.Context, playlistID string, limit int) ([]types.PlaylistItem, error) {
	return e.innertubeClient().GetPlaylistItems(playlistID, limit)
}

// GetPlaylistItemsAll returns playlist items, following continuations up to
// the limit.
func (e *Extractor) GetPlaylistItemsAll(ctx context.Context, playlistID string, limit int) ([]types.PlaylistItem, error) {
	return e.innertubeClient().GetPlaylistItemsAll(playlistID, limit)
}

// Playlist is a lazy iterator over a playlist's pages. Each Next call fetches
// one innertube page; no page is requested before it is asked for.
type Playlist struct {
	it       *innertube.Client
	id       string
	token    string
	pageSize int
	started  bool
	done     bool
}

// Playlist creates a lazy iterator for a playlist ID. pageSize bounds the
// first page; zero or less means the service default.
func (e *Extractor) Playlist(playlistID string, pageSize int) *Playlist {
	return &Playlist{it: e.innertubeClient(), id: playlistID, pageSize: pageSize}
}

// Next returns the next page of items. It returns (nil, nil) once the
// playlist is exhausted.
func (p *Playlist) Next(ctx context.Context) ([]types.PlaylistItem, error) {
	if p.done {
		return nil, nil
	}
	var (
		items []types.PlaylistItem
		token string
		err   error
	)
	if !p.started {
		p.started = true
		items, token, err = p.it.GetPlaylistPage(p.id, p.pageSize)
	} else {
		items, token, err = p.it.GetPlaylistContinuation(p.token)
	}
	if err != nil {
		return nil, err
	}
	p.token = token
	if token == "" {
		p.done = true
	}
	if len(items) == 0 && p.done {
		return nil, nil
	}
	return items, nil
}
