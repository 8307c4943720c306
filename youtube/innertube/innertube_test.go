package innertube

import (
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/tubeget/tubeget/types"
)

func TestNew(t *testing.T) {
	t.Run("nil http client gets a default", func(t *testing.T) {
		c := New(nil)
		if c.HTTPClient == nil {
			t.Fatal("expected HTTPClient to be initialized")
		}
		if c.clientName != clientNameWEB {
			t.Errorf("clientName = %q, want %q", c.clientName, clientNameWEB)
		}
	})
	t.Run("custom http client kept", func(t *testing.T) {
		hc := &http.Client{Timeout: 10 * time.Second}
		c := New(hc)
		if c.HTTPClient != hc {
			t.Error("custom client should be used as-is")
		}
	})
}

func TestWithClient(t *testing.T) {
	tests := []struct {
		name          string
		clientName    string
		clientVersion string
		wantName      string
		wantVer       string
	}{
		{"both set", "ANDROID", "20.10.38", "ANDROID", "20.10.38"},
		{"empty name keeps default", "", "1.0.0", "WEB", "1.0.0"},
		{"whitespace name keeps default", "   ", "3.0.0", "WEB", "3.0.0"},
		{"empty version keeps previous", "IOS", "", "IOS", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil).WithClient(tt.clientName, tt.clientVersion)
			if c.clientName != tt.wantName {
				t.Errorf("clientName = %q, want %q", c.clientName, tt.wantName)
			}
			if c.clientVer != tt.wantVer {
				t.Errorf("clientVer = %q, want %q", c.clientVer, tt.wantVer)
			}
		})
	}
}

func TestClientCodeFromName(t *testing.T) {
	cases := map[string]string{
		"WEB":     "1",
		"web":     "1",
		"MWEB":    "2",
		"ANDROID": "3",
		"IOS":     "5",
		"TVHTML5": "7",
		"UNKNOWN": "",
		"":        "",
	}
	for in, want := range cases {
		if got := clientCodeFromName(in); got != want {
			t.Errorf("clientCodeFromName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetPlayerResponse(t *testing.T) {
	const body = `{"playabilityStatus":{"status":"OK"},"videoDetails":{"title":"t"},"streamingData":{"formats":[{"itag":18}]}}`

	tests := []struct {
		name   string
		encode func(w http.ResponseWriter)
	}{
		{"identity", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(body))
		}},
		{"gzip", func(w http.ResponseWriter) {
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(body))
			_ = gz.Close()
		}},
		{"brotli", func(w http.ResponseWriter) {
			w.Header().Set("Content-Encoding", "br")
			br := brotli.NewWriter(w)
			_, _ = br.Write([]byte(body))
			_ = br.Close()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				tt.encode(w)
			}))
			defer srv.Close()

			c := New(&http.Client{Timeout: 5 * time.Second})
			c.apiKey = "k"
			c.clientVer = "2.0"
			c.visitorId.value = "v"
			c.visitorId.updated = time.Now()

			oldPlayerURL := playerURL
			playerURL = srv.URL
			defer func() { playerURL = oldPlayerURL }()

			pr, err := c.GetPlayerResponse("vid")
			if err != nil {
				t.Fatalf("GetPlayerResponse() error: %v", err)
			}
			if pr.PlayabilityStatus.Status != "OK" {
				t.Errorf("status = %q, want OK", pr.PlayabilityStatus.Status)
			}
			if len(pr.StreamingData.Formats) != 1 {
				t.Errorf("formats = %d, want 1", len(pr.StreamingData.Formats))
			}
		})
	}
}

func TestPlayerResponseStatus(t *testing.T) {
	var pr PlayerResponse
	pr.PlayabilityStatus.Status = "UNPLAYABLE"
	pr.PlayabilityStatus.Reason = "offline"
	pr.PlayabilityStatus.LiveStreamability = &struct {
		LiveStreamabilityRenderer map[string]any `json:"liveStreamabilityRenderer"`
	}{}

	got := pr.Status()
	want := types.PlayabilityStatus{Status: "UNPLAYABLE", Reason: "offline", LiveStream: true}
	if got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
}

func TestGetPlaylistItemsAllFollowsContinuations(t *testing.T) {
	page := func(ids []string, next string) string {
		out := `{"contents":[`
		for i, id := range ids {
			if i > 0 {
				out += ","
			}
			out += `{"playlistVideoRenderer":{"videoId":"` + id + `","title":{"runs":[{"text":"` + id + `"}]}}}`
		}
		out += `]`
		if next != "" {
			out += `,"continuationCommand":{"token":"` + next + `"}`
		}
		return out + `}`
	}

	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		w.Header().Set("Content-Type", "application/json")
		if call == 1 {
			_, _ = w.Write([]byte(page([]string{"aaaaaaaaaaa", "bbbbbbbbbbb"}, "tok1")))
			return
		}
		_, _ = w.Write([]byte(page([]string{"ccccccccccc"}, "")))
	}))
	defer srv.Close()

	c := New(&http.Client{Timeout: 5 * time.Second})
	c.apiKey = "k"
	c.clientVer = "2.0"
	c.visitorId.value = "v"
	c.visitorId.updated = time.Now()

	oldBrowseURL := browseURL
	browseURL = srv.URL
	defer func() { browseURL = oldBrowseURL }()

	items, err := c.GetPlaylistItemsAll("PLx", 10)
	if err != nil {
		t.Fatalf("GetPlaylistItemsAll() error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	if items[2].VideoID != "ccccccccccc" {
		t.Errorf("last item = %+v", items[2])
	}
	if call != 2 {
		t.Errorf("requests = %d, want 2", call)
	}
}

func TestCollectPlaylistVideoRenderers(t *testing.T) {
	node := map[string]any{
		"contents": []any{
			map[string]any{"playlistVideoRenderer": map[string]any{
				"videoId": "aaaaaaaaaaa",
				"index":   map[string]any{"simpleText": "1"},
				"title":   map[string]any{"runs": []any{map[string]any{"text": "first"}}},
			}},
			map[string]any{"playlistVideoRenderer": map[string]any{
				"videoId": "bbbbbbbbbbb",
			}},
		},
	}

	var items []types.PlaylistItem
	collectPlaylistVideoRenderers(node, &items, 10)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].VideoID != "aaaaaaaaaaa" || items[0].Index != 1 || items[0].Title != "first" {
		t.Errorf("first item = %+v", items[0])
	}

	items = items[:0]
	collectPlaylistVideoRenderers(node, &items, 1)
	if len(items) != 1 {
		t.Errorf("limit not honored: %d items", len(items))
	}
}

func TestFindFirstContinuationToken(t *testing.T) {
	tests := []struct {
		name string
		node any
		want string
	}{
		{"nil", nil, ""},
		{"empty map", map[string]any{}, ""},
		{"continuationCommand", map[string]any{"continuationCommand": map[string]any{"token": "t1"}}, "t1"},
		{"nextContinuationData", map[string]any{"nextContinuationData": map[string]any{"continuation": "t2"}}, "t2"},
		{"direct", map[string]any{"continuation": "t3"}, "t3"},
		{"nested", map[string]any{"data": map[string]any{"continuationCommand": map[string]any{"token": "t4"}}}, "t4"},
		{"in array", []any{map[string]any{"continuation": ""}, map[string]any{"continuation": "t5"}}, "t5"},
		{"non-string ignored", map[string]any{"continuation": 123}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findFirstContinuationToken(tt.node); got != tt.want {
				t.Errorf("findFirstContinuationToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
