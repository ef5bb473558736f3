package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var youtubePattern = regexp.MustCompile(`(?i)(https?://)?(www\.)?(youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([^\s&]+)`)

// IsYouTubeURL reports whether text contains a YouTube link anywhere.
func IsYouTubeURL(text string) bool {
	return youtubePattern.MatchString(text)
}

// NormalizeYouTubeURL pulls the first YouTube link out of text. Short
// youtu.be links become https://www.youtube.com/watch?v=ID, scheme-less
// links get https://.
func NormalizeYouTubeURL(text string) string {
	m := youtubePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if strings.Contains(strings.ToLower(m[0]), "youtu.be") {
		id := m[4]
		if i := strings.IndexAny(id, "?#"); i >= 0 {
			id = id[:i]
		}
		return "https://www.youtube.com/watch?v=" + id
	}
	if strings.HasPrefix(strings.ToLower(m[0]), "http") {
		return m[0]
	}
	return "https://" + m[0]
}

type YouTubeConfig struct {
	Ytdlp string
	Lang  string
}

// YouTube resolves a video's title, duration and caption track with yt-dlp.
type YouTube struct {
	cfg        YouTubeConfig
	runner     Runner
	httpClient *http.Client
}

func NewYouTube(cfg YouTubeConfig, runner Runner) *YouTube {
	if cfg.Ytdlp == "" {
		cfg.Ytdlp = "yt-dlp"
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &YouTube{cfg: cfg, runner: runner, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type captionTrack struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

type videoInfo struct {
	Title             string                    `json:"title"`
	Duration          float64                   `json:"duration"`
	Subtitles         map[string][]captionTrack `json:"subtitles"`
	AutomaticCaptions map[string][]captionTrack `json:"automatic_captions"`
}

func (y *YouTube) Extract(ctx context.Context, src Source) Result {
	md := Metadata{"type": string(KindYouTube), "title": "", "duration": 0.0}
	url := src.URL
	if url == "" {
		url = NormalizeYouTubeURL(src.Text)
	}
	if url == "" {
		return failed(md, fmt.Errorf("no youtube url in input"))
	}

	out, errb, err := y.runner.Run(ctx, y.cfg.Ytdlp, "--dump-single-json", "--skip-download", "--no-warnings", url)
	if err != nil {
		return failed(md, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(string(errb))))
	}
	var info videoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return failed(md, fmt.Errorf("decode yt-dlp output: %w", err))
	}
	title := info.Title
	if title == "" {
		title = "Unknown Title"
	}
	md["title"] = title
	md["duration"] = info.Duration

	track, ok := pickTrack(info.Subtitles, y.cfg.Lang)
	if !ok {
		track, ok = pickTrack(info.AutomaticCaptions, y.cfg.Lang)
	}
	if !ok {
		return Result{
			Text:     fmt.Sprintf("YouTube Video: %s\n\nNo transcript available for this video.", title),
			Success:  false,
			Metadata: md,
			Error:    "No subtitles/captions available",
		}
	}

	transcript, err := y.fetchCaptions(ctx, track.URL)
	if err != nil {
		return failed(md, err)
	}
	if transcript == "" {
		return failed(md, fmt.Errorf("caption track was empty"))
	}
	return Result{
		Text:     fmt.Sprintf("YouTube Video: %s\n\n%s", title, transcript),
		Success:  true,
		Metadata: md,
	}
}

func pickTrack(tracks map[string][]captionTrack, lang string) (captionTrack, bool) {
	for _, t := range tracks[lang] {
		if t.Ext == "vtt" && t.URL != "" {
			return t, true
		}
	}
	return captionTrack{}, false
}

func (y *YouTube) fetchCaptions(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := y.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("caption fetch status %d", resp.StatusCode)
	}
	return flattenVTT(resp.Body)
}

var vttTag = regexp.MustCompile(`<[^>]+>`)

// flattenVTT turns a WebVTT caption file into plain text, dropping cue
// timings and the rolling duplicates auto-captions produce.
func flattenVTT(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	last := ""
	inHeader := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if inHeader {
			if line == "" {
				inHeader = false
			}
			continue
		}
		if line == "" || strings.Contains(line, "-->") || isDigits(line) ||
			strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") {
			continue
		}
		line = strings.TrimSpace(vttTag.ReplaceAllString(line, ""))
		if line == "" || line == last {
			continue
		}
		lines = append(lines, line)
		last = line
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, " "), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
