package types

// PlaylistItem is a minimal playlist entry.
type PlaylistItem struct {
	VideoID string
	Title   string
	Index   int
}

// PlaylistInfo describes playlist information.
type PlaylistInfo struct {
	ID         string
	Title      string
	Author     string
	VideoCount int
}
