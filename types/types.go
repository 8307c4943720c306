package types

// Format describes one entry of a stream manifest.
type Format struct {
	Itag            int
	URL             string
	Quality         string
	MimeType        string
	Bitrate         int
	Size            int64
	SignatureCipher string
}

// PlayabilityStatus summarizes whether and how a video can be played.
type PlayabilityStatus struct {
	Status     string
	Reason     string
	LiveStream bool
}

// VideoInfo describes video information.
type VideoInfo struct {
	ID          string
	Title       string
	Author      string
	Description string
	Duration    int
	PublishDate string
	ViewCount   int64
	Formats     []Format
}
