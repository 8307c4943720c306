// Package watchpage extracts structured data out of a raw YouTube watch
// page: the video ID from a URL, the player script URL, and the embedded
// ytInitialPlayerResponse / ytInitialData JSON blobs.
package watchpage

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tubeget/tubeget/internal/logger"
	"github.com/tubeget/tubeget/youtube/cipher"
)

const ytBase = "https://www.youtube.com"

var log = logger.WithComponent(logger.ComponentExtract)

var (
	videoIDRe    = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	shortLinkRe  = regexp.MustCompile(`^/(?:embed/|shorts/|v/)?([0-9A-Za-z_-]{11})`)
	jsURLRe      = regexp.MustCompile(`(/s/player/[\w\d]+/[\w\d_/.]+/base\.js)`)
	jsAssetRe    = regexp.MustCompile(`"(?:PLAYER_JS_URL|jsUrl)"\s*:\s*"([^"]+)"`)
	dateRe       = regexp.MustCompile(`itemprop="datePublished" content="(\d{4}-\d{2}-\d{2})"`)
	ageGateRe    = regexp.MustCompile(`og:restrictions:age`)
	playerRespRe = regexp.MustCompile(`(?:window\s*\[\s*["']ytInitialPlayerResponse["']\s*\]|ytInitialPlayerResponse)\s*=\s*\{`)
	initialDataRe = regexp.MustCompile(`(?:window\s*\[\s*["']ytInitialData["']\s*\]|ytInitialData)\s*=\s*\{`)
)

var privateStrings = []string{
	"This is a private video. Please sign in to verify that you may see it.",
	`"simpleText":"Private video"`,
	"This video is private.",
}

var liveUnavailableStrings = []string{
	"This live stream recording is not available.",
}

// VideoID extracts the eleven-character video ID from a watch URL.
// Accepted shapes: watch?v=ID, youtu.be/ID, embed/ID, shorts/ID, or a bare ID.
func VideoID(videoURL string) (string, error) {
	raw := strings.TrimSpace(videoURL)
	if videoIDRe.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse video url: %v", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		if videoIDRe.MatchString(id) {
			return id, nil
		}
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if strings.HasPrefix(u.Path, "/watch") {
			if id := u.Query().Get("v"); videoIDRe.MatchString(id) {
				return id, nil
			}
		}
		if m := shortLinkRe.FindStringSubmatch(u.Path); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no video id in url: %s", videoURL)
}

// WatchURL builds the canonical watch page URL for a video ID.
func WatchURL(videoID string) string {
	return ytBase + "/watch?v=" + videoID
}

// JSURL extracts the player script URL from the watch page html. The path is
// relative in the page; the returned URL is absolute.
func JSURL(html string) (string, error) {
	if m := jsURLRe.FindStringSubmatch(html); m != nil {
		return ytBase + m[1], nil
	}
	if m := jsAssetRe.FindStringSubmatch(html); m != nil {
		path := strings.ReplaceAll(m[1], `\/`, "/")
		log.Debug("player js path taken from config asset", map[string]any{"path": path})
		if strings.HasPrefix(path, "//") {
			return "https:" + path, nil
		}
		if strings.HasPrefix(path, "/") {
			return ytBase + path, nil
		}
		return path, nil
	}
	return "", fmt.Errorf("player js url not found in watch page")
}

// PlayerResponseJSON returns the raw ytInitialPlayerResponse JSON object
// embedded in the watch page. The object is bounded with the balanced-brace
// scanner because it contains nested objects and brace-bearing strings that
// a regexp alone cannot delimit.
func PlayerResponseJSON(html string) (string, error) {
	return embeddedObject(html, playerRespRe, "ytInitialPlayerResponse")
}

// InitialDataJSON returns the raw ytInitialData JSON object embedded in the
// watch page.
func InitialDataJSON(html string) (string, error) {
	return embeddedObject(html, initialDataRe, "ytInitialData")
}

func embeddedObject(html string, re *regexp.Regexp, name string) (string, error) {
	loc := re.FindStringIndex(html)
	if loc == nil {
		return "", fmt.Errorf("%s not found in watch page", name)
	}
	obj, _, err := cipher.ExtractBlock(html, loc[1]-1)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return obj, nil
}

// IsPrivate reports whether the watch page says the video is private.
func IsPrivate(html string) bool {
	for _, s := range privateStrings {
		if strings.Contains(html, s) {
			return true
		}
	}
	return false
}

// IsAgeRestricted reports whether the watch page carries an age gate.
func IsAgeRestricted(html string) bool {
	return ageGateRe.MatchString(html)
}

// RecordingAvailable reports whether a finished live stream still has its
// recording. Pages of removed recordings carry an explicit notice.
func RecordingAvailable(html string) bool {
	for _, s := range liveUnavailableStrings {
		if strings.Contains(html, s) {
			return false
		}
	}
	return true
}

// PublishDate returns the publish date from the watch page metadata, or the
// zero time when the page does not carry one.
func PublishDate(html string) time.Time {
	m := dateRe.FindStringSubmatch(html)
	if m == nil {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}
	}
	return t
}
