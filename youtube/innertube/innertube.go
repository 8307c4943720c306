// Package innertube is a minimal client for the YouTube InnerTube API: the
// /player endpoint for stream manifests and the /browse endpoint for
// playlist contents.
package innertube

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/tubeget/tubeget/internal/logger"
	"github.com/tubeget/tubeget/types"
)

var (
	playerURL = "https://www.youtube.com/youtubei/v1/player"
	browseURL = "https://www.youtube.com/youtubei/v1/browse"
)

const (
	ytBase                = "https://www.youtube.com"
	userAgentValue        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	headerContentTypeJSON = "application/json"
	clientNameWEB         = "WEB"
	defaultClientVersion  = "2.20250312.04.00"
	browseIDPrefix        = "VL"
	defaultPlaylistLimit  = 100
	continuationLimitMax  = 1 << 20
	visitorIdMaxAge       = 10 * time.Hour
)

var (
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

var log = logger.WithComponent(logger.ComponentInnerTube)

// clientCodeFromName returns X-YouTube-Client-Name numeric code for known clients
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	default:
		return ""
	}
}

// Client for interacting with the YouTube InnerTube API.
type Client struct {
	HTTPClient *http.Client
	apiKey     string
	clientVer  string
	clientName string
	visitorId  struct {
		value   string
		updated time.Time
	}
}

// New creates a new InnerTube client. A nil httpClient gets a tuned default.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				ReadBufferSize:        16 * 1024,
				WriteBufferSize:       16 * 1024,
			},
			Timeout: 30 * time.Second,
		}
	}
	return &Client{HTTPClient: httpClient, clientName: clientNameWEB}
}

// WithClient overrides InnerTube client name/version to shape playback URLs.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = name
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = version
	}
	return c
}

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	StreamingData struct {
		Formats         []any `json:"formats"`
		AdaptiveFormats []any `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails struct {
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
		IsLiveContent bool   `json:"isLiveContent"`
	} `json:"videoDetails"`
	PlayabilityStatus struct {
		Status            string `json:"status"`
		Reason            string `json:"reason"`
		LiveStreamability *struct {
			LiveStreamabilityRenderer map[string]any `json:"liveStreamabilityRenderer"`
		} `json:"liveStreamability"`
	} `json:"playabilityStatus"`
}

// Status maps the playability section onto the shared types value.
func (pr *PlayerResponse) Status() types.PlayabilityStatus {
	return types.PlayabilityStatus{
		Status:     pr.PlayabilityStatus.Status,
		Reason:     pr.PlayabilityStatus.Reason,
		LiveStream: pr.PlayabilityStatus.LiveStreamability != nil || pr.VideoDetails.IsLiveContent,
	}
}

func (c *Client) ensureKey(videoOrPlaylistID string, isPlaylist bool) {
	if c.apiKey != "" && c.clientVer != "" {
		return
	}

	sources := []string{}
	if isPlaylist {
		sources = append(sources, ytBase+"/playlist?list="+videoOrPlaylistID)
	} else {
		sources = append(sources, ytBase+"/watch?v="+videoOrPlaylistID)
	}
	sources = append(sources, ytBase)

	for _, source := range sources {
		if c.apiKey != "" && c.clientVer != "" {
			break
		}

		req, err := http.NewRequest("GET", source, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", userAgentValue)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		req.Header.Set("Accept-Encoding", "identity")

		resp, err := c.HTTPClient.Do(req)
		if err != nil || resp == nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			continue
		}

		if c.apiKey == "" {
			if m := apiKeyRe.FindSubmatch(body); len(m) == 2 {
				c.apiKey = string(m[1])
			}
		}
		if c.clientVer == "" {
			if m := clientVerRe.FindSubmatch(body); len(m) == 2 {
				c.clientVer = string(m[1])
			}
		}
	}

	if c.clientVer == "" {
		c.clientVer = defaultClientVersion
	}
}

// contextClient builds the "client" object of the InnerTube request context
// and the matching User-Agent.
func (c *Client) contextClient() (map[string]any, string) {
	name := c.clientName
	ver := c.clientVer
	if name != clientNameWEB && ver == defaultClientVersion {
		ver = "2.0"
	}
	clientMap := map[string]any{
		"clientName":    name,
		"clientVersion": ver,
	}
	ua := userAgentValue
	if strings.EqualFold(name, "ANDROID") {
		clientMap["androidSdkVersion"] = 30
		clientMap["osName"] = "Android"
		clientMap["osVersion"] = "11"
		ua = "com.google.android.youtube/" + ver + " (Linux; U; Android 11) gzip"
		clientMap["userAgent"] = ua
	}
	return clientMap, ua
}

func (c *Client) setCommonHeaders(req *http.Request, ua string) {
	req.Header.Set("Content-Type", headerContentTypeJSON)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", "https://www.youtube.com/")
	req.Header.Set("Origin", "https://www.youtube.com")
	if code := clientCodeFromName(c.clientName); code != "" {
		req.Header.Set("X-YouTube-Client-Name", code)
	}
	req.Header.Set("X-YouTube-Client-Version", c.clientVer)
	if visitorId, err := c.getVisitorId(); err == nil && visitorId != "" {
		req.Header.Set("x-goog-visitor-id", visitorId)
	}
}

// decodeBody returns a reader over the decompressed response body.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %v", err)
		}
		return gz, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// GetPlayerResponse fetches video data for the provided video ID using the
// InnerTube /player endpoint.
func (c *Client) GetPlayerResponse(videoID string) (*PlayerResponse, error) {
	c.ensureKey(videoID, false)
	if c.apiKey == "" {
		return nil, errors.New("innertube: api key not found")
	}

	clientMap, ua := c.contextClient()
	requestBody, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": clientMap,
		},
		"videoId": videoID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", playerURL+"?key="+c.apiKey, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}
	c.setCommonHeaders(req, ua)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	log.Debug("player response", map[string]any{"status": resp.StatusCode, "video_id": videoID})

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	if closer, ok := reader.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response body: %v", err)
	}

	var playerResponse PlayerResponse
	if err := json.Unmarshal(body, &playerResponse); err != nil {
		return nil, fmt.Errorf("parse player response: %v", err)
	}
	return &playerResponse, nil
}

// GetPlaylistItems fetches the first page of playlist items.
func (c *Client) GetPlaylistItems(playlistID string, limit int) ([]types.PlaylistItem, error) {
	items, _, err := c.GetPlaylistPage(playlistID, limit)
	return items, err
}

// GetPlaylistItemsAll loads playlist items with continuations up to the limit.
// A limit of zero or less means the default page size.
func (c *Client) GetPlaylistItemsAll(playlistID string, limit int) ([]types.PlaylistItem, error) {
	items, token, err := c.GetPlaylistPage(playlistID, limit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPlaylistLimit
	}
	for token != "" && len(items) < limit {
		more, next, err := c.GetPlaylistContinuation(token)
		if err != nil {
			break
		}
		items = append(items, more...)
		token = next
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetPlaylistPage fetches the first browse page and returns its items plus
// the continuation token, if any.
func (c *Client) GetPlaylistPage(playlistID string, limit int) ([]types.PlaylistItem, string, error) {
	c.ensureKey(playlistID, true)
	if c.apiKey == "" {
		return nil, "", errors.New("innertube: api key not found")
	}
	if limit <= 0 {
		limit = defaultPlaylistLimit
	}

	clientMap, ua := c.contextClient()
	root, err := c.browse(map[string]any{
		"context":  map[string]any{"client": clientMap},
		"browseId": browseIDPrefix + playlistID,
	}, ua)
	if err != nil {
		return nil, "", err
	}

	items := make([]types.PlaylistItem, 0, 50)
	collectPlaylistVideoRenderers(root, &items, limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, findFirstContinuationToken(root), nil
}

// GetPlaylistContinuation fetches one continuation page and returns its items
// and the next token ("" when the playlist is exhausted).
func (c *Client) GetPlaylistContinuation(continuation string) ([]types.PlaylistItem, string, error) {
	if c.apiKey == "" {
		return nil, "", errors.New("innertube: api key not found")
	}
	clientMap, ua := c.contextClient()
	root, err := c.browse(map[string]any{
		"context":      map[string]any{"client": clientMap},
		"continuation": continuation,
	}, ua)
	if err != nil {
		return nil, "", err
	}
	items := make([]types.PlaylistItem, 0, 50)
	collectPlaylistVideoRenderers(root, &items, continuationLimitMax)
	return items, findFirstContinuationToken(root), nil
}

// browse POSTs one /browse request and decodes the JSON tree.
func (c *Client) browse(reqBody map[string]any, ua string) (any, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", browseURL+"?key="+c.apiKey, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, err
	}
	c.setCommonHeaders(req, ua)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	if closer, ok := reader.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	respBody, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	var root any
	if err := json.Unmarshal(respBody, &root); err != nil {
		return nil, err
	}
	return root, nil
}

func collectPlaylistVideoRenderers(node any, out *[]types.PlaylistItem, limit int) {
	if len(*out) >= limit {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if r, ok := v["playlistVideoRenderer"].(map[string]any); ok {
			var it types.PlaylistItem
			if s, ok := r["videoId"].(string); ok {
				it.VideoID = s
			}
			if idx, ok := r["index"].(map[string]any); ok {
				if simple, ok := idx["simpleText"].(string); ok {
					if n, err := strconv.Atoi(simple); err == nil {
						it.Index = n
					}
				}
			}
			if title, ok := r["title"].(map[string]any); ok {
				if runs, ok := title["runs"].([]any); ok && len(runs) > 0 {
					if first, ok := runs[0].(map[string]any); ok {
						if txt, ok := first["text"].(string); ok {
							it.Title = txt
						}
					}
				}
			}
			*out = append(*out, it)
			return
		}
		for _, val := range v {
			collectPlaylistVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	case []any:
		for _, val := range v {
			collectPlaylistVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	}
}

func findFirstContinuationToken(node any) string {
	switch v := node.(type) {
	case map[string]any:
		// common places: continuationCommand.token, nextContinuationData.continuation
		if cc, ok := v["continuationCommand"].(map[string]any); ok {
			if tok, ok := cc["token"].(string); ok && tok != "" {
				return tok
			}
		}
		if nd, ok := v["nextContinuationData"].(map[string]any); ok {
			if tok, ok := nd["continuation"].(string); ok && tok != "" {
				return tok
			}
		}
		if tok, ok := v["continuation"].(string); ok && tok != "" {
			return tok
		}
		for _, val := range v {
			if t := findFirstContinuationToken(val); t != "" {
				return t
			}
		}
	case []any:
		for _, val := range v {
			if t := findFirstContinuationToken(val); t != "" {
				return t
			}
		}
	}
	return ""
}

// getVisitorId returns the current visitor ID, refreshing it if necessary
func (c *Client) getVisitorId() (string, error) {
	var err error
	if c.visitorId.value == "" || time.Since(c.visitorId.updated) > visitorIdMaxAge {
		err = c.refreshVisitorId()
	}
	return c.visitorId.value, err
}

// refreshVisitorId fetches a new visitor ID from YouTube's main page
func (c *Client) refreshVisitorId() error {
	const sep = "\nytcfg.set("

	req, err := http.NewRequest(http.MethodGet, ytBase, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	_, data1, found := strings.Cut(string(data), sep)
	if !found {
		return errors.New("visitor ID not found in YouTube response")
	}

	var value struct {
		InnertubeContext struct {
			Client struct {
				VisitorData string `json:"visitorData"`
			} `json:"client"`
		} `json:"INNERTUBE_CONTEXT"`
	}
	if err := json.NewDecoder(strings.NewReader(data1)).Decode(&value); err != nil {
		return err
	}

	c.visitorId.value = strings.ReplaceAll(value.InnertubeContext.Client.VisitorData, "%3D", "=")
	c.visitorId.updated = time.Now()
	return nil
}
