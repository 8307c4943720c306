package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tubeget/tubeget"
	"github.com/tubeget/tubeget/client"
	"github.com/tubeget/tubeget/internal/logger"
)

func main() {
	var (
		flagFormat      string
		flagExt         string
		flagOutput      string
		flagResolve     bool
		flagNoProgress  bool
		flagTimeout     time.Duration
		flagRetries     int
		flagUA          string
		flagProxy       string
		flagRateLimit   string
		flagPlaylist    bool
		flagLimit       int
		flagConcurrency int
	)

	flag.StringVar(&flagFormat, "format", "", "Format selector (e.g., 'itag=22', 'best', 'height<=480')")
	flag.StringVar(&flagExt, "ext", "", "Desired extension (e.g., 'mp4', 'webm')")
	flag.StringVar(&flagOutput, "output", "", "Output path (file or directory). Empty derives from title + MIME")
	flag.BoolVar(&flagResolve, "resolve", false, "Print the resolved media URL instead of downloading")
	flag.BoolVar(&flagNoProgress, "no-progress", false, "Disable progress output")
	flag.DurationVar(&flagTimeout, "http-timeout", 30*time.Second, "HTTP timeout (e.g., 30s, 1m)")
	flag.IntVar(&flagRetries, "retries", 3, "HTTP retries for transient errors")
	flag.StringVar(&flagUA, "ua", "", "Override User-Agent header")
	flag.StringVar(&flagProxy, "proxy", "", "Proxy URL (http/https/socks)")
	flag.StringVar(&flagRateLimit, "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")
	flag.BoolVar(&flagPlaylist, "playlist", false, "Treat input as playlist URL or ID")
	flag.IntVar(&flagLimit, "limit", 0, "Max items to process for playlist (0 means all)")
	flag.IntVar(&flagConcurrency, "concurrency", 1, "Parallelism for playlist downloads")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <video_or_playlist_url>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Logger is configured from TUBEGET_LOG_* environment variables.
	if lg, err := logger.CreateLoggerFromConfig(logger.EnvironmentConfig()); err == nil {
		logger.SetGlobalLogger(lg)
	}

	input := strings.TrimSpace(args[0])

	cfg := client.Config{Timeout: flagTimeout, Retries: flagRetries, UserAgent: flagUA, ProxyURL: flagProxy}
	c := client.NewWith(cfg)

	newExtractor := func(withProgress bool) *tubeget.Extractor {
		e := tubeget.New().WithHTTPClient(c.HTTPClient)
		if flagFormat != "" || flagExt != "" {
			e = e.WithFormat(flagFormat, flagExt)
		}
		if flagOutput != "" {
			e = e.WithOutputPath(flagOutput)
		}
		if bps := parseRate(flagRateLimit); bps > 0 {
			e = e.WithRateLimit(bps)
		}
		if withProgress && !flagNoProgress {
			e = e.WithProgress(func(p tubeget.Progress) {
				if p.TotalSize > 0 {
					_, _ = fmt.Fprintf(os.Stdout, "Downloaded %.1f%%\r", p.Percent)
				}
			})
		}
		return e
	}

	if flagPlaylist {
		if err := runPlaylist(input, flagOutput, flagLimit, flagConcurrency, newExtractor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flagResolve {
		mediaURL, info, err := newExtractor(false).ResolveURL(context.Background(), input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s\n", mediaURL)
		_, _ = fmt.Fprintf(os.Stderr, "Title: %s\n", info.Title)
		return
	}

	info, err := newExtractor(true).Download(context.Background(), input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	_, _ = fmt.Fprintf(os.Stdout, "\nSaved: %s\n", info.Title)
}

// runPlaylist walks playlist pages lazily and downloads items as they are
// discovered, fanning out over the requested number of workers.
func runPlaylist(input, outDir string, limit, concurrency int, newExtractor func(bool) *tubeget.Extractor) error {
	playlistID, err := parsePlaylistID(input)
	if err != nil {
		return fmt.Errorf("invalid playlist input: %w", err)
	}
	if outDir == "" {
		outDir = "."
	}
	if !isDir(outDir) {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ctx := context.Background()
	pages := newExtractor(false).Playlist(playlistID, limit)

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			e := newExtractor(concurrency == 1).WithOutputPath(outDir)
			for videoURL := range jobs {
				if info, err := e.Download(ctx, videoURL); err != nil {
					fmt.Fprintf(os.Stderr, "Error downloading %s: %v\n", videoURL, err)
				} else {
					_, _ = fmt.Fprintf(os.Stdout, "Done: %s\n", info.Title)
				}
			}
		}()
	}

	seen := 0
	for {
		items, err := pages.Next(ctx)
		if err != nil {
			close(jobs)
			wg.Wait()
			return fmt.Errorf("fetch playlist page: %w", err)
		}
		if items == nil {
			break
		}
		for _, item := range items {
			if limit > 0 && seen >= limit {
				break
			}
			seen++
			_, _ = fmt.Fprintf(os.Stdout, "Queueing [%d] %s...\n", seen, item.Title)
			jobs <- "https://www.youtube.com/watch?v=" + item.VideoID
		}
		if limit > 0 && seen >= limit {
			break
		}
	}
	close(jobs)
	wg.Wait()
	if seen == 0 {
		fmt.Fprintln(os.Stderr, "No items in playlist")
	}
	return nil
}

// parseRate parses strings like "2MiB/s", "500KiB/s" into bytes per second.
func parseRate(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0
	}
	mul := int64(1)
	s = strings.TrimSuffix(s, "/S")
	s = strings.TrimSpace(s)
	sfx := ""
	for _, suf := range []string{"KIB", "MIB", "GIB", "KB", "MB", "GB"} {
		if strings.HasSuffix(s, suf) {
			sfx = suf
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.TrimSpace(s)
	var val float64
	_, err := fmt.Sscanf(s, "%f", &val)
	if err != nil || val <= 0 {
		return 0
	}
	switch sfx {
	case "KIB":
		mul = 1024
	case "MIB":
		mul = 1024 * 1024
	case "GIB":
		mul = 1024 * 1024 * 1024
	case "KB":
		mul = 1000
	case "MB":
		mul = 1000 * 1000
	case "GB":
		mul = 1000 * 1000 * 1000
	}
	return int64(val * float64(mul))
}

func parsePlaylistID(input string) (string, error) {
	// Raw playlist IDs pass through as-is.
	if input != "" && (strings.HasPrefix(input, "PL") || strings.HasPrefix(input, "UU") || strings.HasPrefix(input, "OLAK5uy_")) {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	if id := u.Query().Get("list"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("playlist id not found")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
