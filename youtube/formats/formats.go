package formats

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tubeget/tubeget/types"
	"github.com/tubeget/tubeget/youtube/innertube"
)

var heightRe = regexp.MustCompile(`([0-9]{3,4})p`)

func getSubtype(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func parseHeight(label string) int {
	m := heightRe.FindStringSubmatch(label)
	if len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// ParseFormats parses the InnerTube player response and returns a list of
// available media formats (both progressive and adaptive) with minimal fields.
func ParseFormats(data *innertube.PlayerResponse) []types.Format {
	var formats []types.Format
	allFormats := append(data.StreamingData.Formats, data.StreamingData.AdaptiveFormats...)

	for _, formatData := range allFormats {
		f, ok := formatData.(map[string]any)
		if !ok {
			continue
		}

		var itag int
		if v, ok := f["itag"].(float64); ok {
			itag = int(v)
		}

		var bitrate int
		if v, ok := f["bitrate"].(float64); ok {
			bitrate = int(v)
		}

		var size int64
		if v, ok := f["contentLength"].(string); ok {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				size = parsed
			}
		}

		mimeType, _ := f["mimeType"].(string)
		quality, _ := f["qualityLabel"].(string)

		format := types.Format{
			Itag:     itag,
			MimeType: mimeType,
			Quality:  quality,
			Bitrate:  bitrate,
			Size:     size,
		}

		if urlVal, ok := f["url"].(string); ok {
			format.URL = urlVal
		} else if sc, ok := f["signatureCipher"].(string); ok {
			format.SignatureCipher = sc
		} else if sc, ok := f["cipher"].(string); ok {
			format.SignatureCipher = sc
		}

		formats = append(formats, format)
	}
	return formats
}

// SelectFormat chooses the best format according to criteria.
// Supported selectors:
//   - ext: file extension ("mp4", "webm")
//   - itag=NN: specific format by itag (e.g., "itag=22" for 720p MP4)
//   - best: highest quality (height, then bitrate)
//   - worst: lowest quality
//   - height<=NNN: height no more than NNN (e.g., "height<=720")
//   - height>=NNN: height no less than NNN (e.g., "height>=480")
//
// If selector is absent or no match found, heuristic is used:
// prefer itag 22 (720p MP4), then itag 18 (360p MP4),
// then progressive mp4 with avc1, else first available.
func SelectFormat(formats []types.Format, quality, ext string) *types.Format {
	if len(formats) == 0 {
		return nil
	}
	all := make([]types.Format, 0, len(formats))
	all = append(all, formats...)

	// filter by extension if provided
	filtered := make([]types.Format, 0, len(all))
	for i := range all {
		if mimeSubtypeEquals(all[i], ext) {
			filtered = append(filtered, all[i])
		}
	}
	if len(filtered) == 0 {
		filtered = all
	}

	q := strings.TrimSpace(strings.ToLower(quality))
	// explicit itag selector
	if strings.HasPrefix(q, "itag=") {
		val := strings.TrimPrefix(q, "itag=")
		if it, err := strconv.Atoi(val); err == nil {
			for i := range filtered {
				if itagEquals(filtered[i], it) {
					return &filtered[i]
				}
			}
		}
	}

	// height constraints
	var minH, maxH int
	if strings.HasPrefix(q, "height<=") {
		if v, err := strconv.Atoi(strings.TrimPrefix(q, "height<=")); err == nil {
			maxH = v
		}
	}
	if strings.HasPrefix(q, "height>=") {
		if v, err := strconv.Atoi(strings.TrimPrefix(q, "height>=")); err == nil {
			minH = v
		}
	}
	if minH > 0 || maxH > 0 {
		tmp := filtered[:0]
		for i := range filtered {
			if withinHeight(filtered[i], minH, maxH) {
				tmp = append(tmp, filtered[i])
			}
		}
		if len(tmp) > 0 {
			filtered = tmp
		}
	}

	// best/worst using height then bitrate
	if q == "best" || q == "worst" {
		best := filtered[0]
		for _, f := range filtered[1:] {
			if betterByHeightThenBitrate(f, best) {
				best = f
			}
		}
		if q == "best" {
			return &best
		}
		worst := filtered[0]
		for _, f := range filtered[1:] {
			if betterByHeightThenBitrate(worst, f) {
				worst = f
			}
		}
		return &worst
	}

	// Backward compatibility: itag 22 -> 18
	var itag22, itag18 *types.Format
	for i := range filtered {
		if filtered[i].Itag == 22 {
			v := filtered[i]
			itag22 = &v
		}
		if filtered[i].Itag == 18 {
			v := filtered[i]
			itag18 = &v
		}
	}
	if itag22 != nil {
		return itag22
	}
	if itag18 != nil {
		return itag18
	}

	// progressive mp4 with avc1 preference
	for i := range filtered {
		if strings.Contains(filtered[i].MimeType, "video/mp4") && strings.Contains(filtered[i].MimeType, "avc1") {
			return &filtered[i]
		}
	}
	// prefer any with direct URL
	for i := range filtered {
		if hasDirectURL(filtered[i]) {
			return &filtered[i]
		}
	}
	// fallback
	return &filtered[0]
}
