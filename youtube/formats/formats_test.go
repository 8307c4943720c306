package formats

import (
	"encoding/json"
	"testing"

	"github.com/tubeget/tubeget/types"
	"github.com/tubeget/tubeget/youtube/innertube"
)

func playerResponseFromJSON(t *testing.T, raw string) *innertube.PlayerResponse {
	t.Helper()
	var pr innertube.PlayerResponse
	if err := json.Unmarshal([]byte(raw), &pr); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return &pr
}

func TestParseFormats(t *testing.T) {
	pr := playerResponseFromJSON(t, `{
		"streamingData": {
			"formats": [
				{"itag": 18, "mimeType": "video/mp4; codecs=\"avc1\"", "qualityLabel": "360p",
				 "bitrate": 500000, "contentLength": "1048576", "url": "https://example.com/direct"}
			],
			"adaptiveFormats": [
				{"itag": 137, "mimeType": "video/mp4", "qualityLabel": "1080p",
				 "signatureCipher": "s=AAA&sp=sig&url=https%3A%2F%2Fexample.com%2Fv"},
				{"itag": 251, "mimeType": "audio/webm",
				 "cipher": "s=BBB&url=https%3A%2F%2Fexample.com%2Fa"}
			]
		}
	}`)

	got := ParseFormats(pr)
	if len(got) != 3 {
		t.Fatalf("formats = %d, want 3", len(got))
	}
	if got[0].Itag != 18 || got[0].URL != "https://example.com/direct" || got[0].Size != 1048576 {
		t.Errorf("progressive format = %+v", got[0])
	}
	if got[1].Itag != 137 || got[1].URL != "" || got[1].SignatureCipher == "" {
		t.Errorf("adaptive format = %+v", got[1])
	}
	if got[2].SignatureCipher == "" {
		t.Errorf("legacy cipher field not picked up: %+v", got[2])
	}
}

func TestSelectFormat_Ext_Itag(t *testing.T) {
	list := []types.Format{
		{Itag: 18, MimeType: "video/mp4", URL: "u1", Quality: "360p", Bitrate: 500000},
		{Itag: 22, MimeType: "video/mp4", URL: "u2", Quality: "720p", Bitrate: 2000000},
		{Itag: 100, MimeType: "video/webm", URL: "u3", Quality: "1080p", Bitrate: 3000000},
	}
	if f := SelectFormat(list, "", "webm"); f == nil || f.URL != "u3" {
		t.Fatalf("ext webm -> u3, got %+v", f)
	}
	if f := SelectFormat(list, "itag=18", ""); f == nil || f.URL != "u1" {
		t.Fatalf("itag=18 -> u1, got %+v", f)
	}
}

func TestSelectFormat_BestWorst_Height(t *testing.T) {
	list := []types.Format{
		{Itag: 18, MimeType: "video/mp4", URL: "u1", Quality: "360p", Bitrate: 500000},
		{Itag: 22, MimeType: "video/mp4", URL: "u2", Quality: "720p", Bitrate: 2000000},
		{Itag: 100, MimeType: "video/webm", URL: "u3", Quality: "1080p", Bitrate: 3000000},
	}
	if f := SelectFormat(list, "best", ""); f == nil || f.URL != "u3" {
		t.Fatalf("best -> u3, got %+v", f)
	}
	if f := SelectFormat(list, "worst", ""); f == nil || f.URL != "u1" {
		t.Fatalf("worst -> u1, got %+v", f)
	}
	if f := SelectFormat(list, "height<=720", ""); f == nil || (f.URL != "u2" && f.URL != "u1") {
		t.Fatalf("height<=720 -> u1/u2, got %+v", f)
	}
}

func TestSelectFormat_Empty(t *testing.T) {
	if f := SelectFormat(nil, "best", ""); f != nil {
		t.Fatalf("empty list -> nil, got %+v", f)
	}
}
