package tubeget

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tubeget/tubeget/errs"
	"github.com/tubeget/tubeget/types"
)

func TestAvailabilityError(t *testing.T) {
	cases := []struct {
		name   string
		status types.PlayabilityStatus
		html   string
		want   error
	}{
		{
			name:   "ok",
			status: types.PlayabilityStatus{Status: "OK"},
		},
		{
			name:   "empty status treated as playable",
			status: types.PlayabilityStatus{},
		},
		{
			name:   "geo blocked",
			status: types.PlayabilityStatus{Status: "ERROR", Reason: "The uploader has not made this video available in your country"},
			want:   errs.ErrGeoBlocked,
		},
		{
			name:   "rate limited",
			status: types.PlayabilityStatus{Status: "ERROR", Reason: "Rate limit exceeded"},
			want:   errs.ErrRateLimited,
		},
		{
			name:   "generic error",
			status: types.PlayabilityStatus{Status: "ERROR", Reason: "Video unavailable"},
			want:   errs.ErrVideoUnavailable,
		},
		{
			name:   "login required age gate",
			status: types.PlayabilityStatus{Status: "LOGIN_REQUIRED", Reason: "Sign in to confirm your age"},
			want:   errs.ErrAgeRestricted,
		},
		{
			name:   "login required private page",
			status: types.PlayabilityStatus{Status: "LOGIN_REQUIRED"},
			html:   "This video is private.",
			want:   errs.ErrPrivate,
		},
		{
			name:   "unplayable private",
			status: types.PlayabilityStatus{Status: "UNPLAYABLE", Reason: "This video is private"},
			want:   errs.ErrPrivate,
		},
		{
			name:   "unplayable removed recording",
			status: types.PlayabilityStatus{Status: "UNPLAYABLE"},
			html:   "This live stream recording is not available.",
			want:   errs.ErrLiveStream,
		},
		{
			name:   "live stream offline",
			status: types.PlayabilityStatus{Status: "LIVE_STREAM_OFFLINE"},
			want:   errs.ErrLiveStream,
		},
		{
			name:   "unplayable fallback",
			status: types.PlayabilityStatus{Status: "UNPLAYABLE", Reason: "something else"},
			want:   errs.ErrVideoUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := availabilityError(tc.status, tc.html)
			if !errors.Is(got, tc.want) {
				t.Errorf("availabilityError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNeedsPatching(t *testing.T) {
	direct := []types.Format{{Itag: 22, URL: "https://example.com/v"}}
	if needsPatching(direct) {
		t.Error("direct-URL manifest should not need patching")
	}
	mixed := []types.Format{
		{Itag: 22, URL: "https://example.com/v"},
		{Itag: 137, SignatureCipher: "s=abc&url=x"},
	}
	if !needsPatching(mixed) {
		t.Error("manifest with ciphered entry should need patching")
	}
}

func TestOutputFilePath(t *testing.T) {
	e := New()

	// empty path: derived from title and mime
	got := e.outputFilePath("My Video: Part 1", `video/mp4; codecs="avc1"`)
	if got != "My Video_ Part 1.mp4" {
		t.Errorf("derived path = %q", got)
	}

	// empty title falls back to a generic name
	if got := e.outputFilePath("   ", "video/webm"); got != "video.webm" {
		t.Errorf("fallback path = %q", got)
	}

	// directory path: derived filename joined
	dir := t.TempDir()
	e.WithOutputPath(dir)
	got = e.outputFilePath("clip", "video/mp4")
	if got != filepath.Join(dir, "clip.mp4") {
		t.Errorf("dir path = %q", got)
	}

	// explicit file path wins as-is
	file := filepath.Join(dir, "out.bin")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	e.WithOutputPath(file)
	if got := e.outputFilePath("clip", "video/mp4"); got != file {
		t.Errorf("file path = %q", got)
	}
}

func TestExtractorOptionChaining(t *testing.T) {
	e := New().
		WithFormat("itag=22", ".MP4").
		WithRateLimit(-5).
		WithInnertubeClient(" WEB ", " 2.0 ").
		WithOutputPath("out.mp4")

	if e.options.FormatSelector != "itag=22" {
		t.Errorf("FormatSelector = %q", e.options.FormatSelector)
	}
	if e.options.DesiredExt != "mp4" {
		t.Errorf("DesiredExt = %q, want normalized mp4", e.options.DesiredExt)
	}
	if e.options.RateLimitBps != 0 {
		t.Errorf("RateLimitBps = %d, want clamp to 0", e.options.RateLimitBps)
	}
	if e.options.ITClientName != "WEB" || e.options.ITClientVersion != "2.0" {
		t.Errorf("innertube client = %q %q", e.options.ITClientName, e.options.ITClientVersion)
	}
	if e.options.OutputPath != "out.mp4" {
		t.Errorf("OutputPath = %q", e.options.OutputPath)
	}
}
