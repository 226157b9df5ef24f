package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/wrenhq/wren/agent/contract"
)

const ToolNowPlaying = "now_playing"

type NowPlayingConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// NowPlayingTool fetches the operator's public listening status from an
// external endpoint. The endpoint wraps the user profile and the playback
// state in a two-element array, sometimes nested one level deeper.
type NowPlayingTool struct {
	endpointURL string
	httpClient  *http.Client
}

func NewNowPlayingTool(cfg NowPlayingConfig) *NowPlayingTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NowPlayingTool{
		endpointURL: strings.TrimSpace(cfg.URL),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *NowPlayingTool) Name() string {
	return ToolNowPlaying
}

func (t *NowPlayingTool) Invoke(ctx context.Context, _ map[string]any) (contractx.ToolOutcome, error) {
	if t.endpointURL == "" {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("%w: now_playing endpoint url is not set", contractx.ErrConfiguration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpointURL, nil)
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("build now_playing request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("%w: now_playing request: %w", contractx.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseSize))
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("%w: read now_playing response: %w", contractx.ErrTransient, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("%w: now_playing http status=%d", contractx.ErrTransient, resp.StatusCode)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("%w: decode now_playing response: %v", contractx.ErrTransient, err)
	}

	text, ok := formatPlayingStatus(payload)
	if !ok {
		return contractx.ToolOutcome{Tool: ToolNowPlaying}, fmt.Errorf("%w: now_playing response format was not recognized", contractx.ErrTransient)
	}

	return contractx.ToolOutcome{
		Tool:      ToolNowPlaying,
		Text:      text,
		Citations: []string{t.endpointURL},
		Success:   true,
	}, nil
}

func formatPlayingStatus(payload any) (string, bool) {
	user, status, ok := extractUserAndStatus(payload)
	if !ok {
		return "", false
	}

	displayName := stringField(user, "display_name", "Unknown")
	isPlaying, _ := status["is_playing"].(bool)

	lines := []string{"Listener: " + displayName}
	if !isPlaying {
		lines = append(lines, "Playback status: not currently playing")
		return strings.Join(lines, "\n"), true
	}
	lines = append(lines, "Playback status: currently playing")

	if track, ok := status["track"].(map[string]any); ok {
		lines = append(lines, "Track: "+stringField(track, "name", "Unknown track"))
		lines = append(lines, "Artist: "+stringField(track, "artist", "Unknown artist"))
		lines = append(lines, "Album: "+stringField(track, "album", "Unknown album"))

		progressMS := numberField(status, "progress_ms")
		durationMS := numberField(track, "duration_ms")
		if durationMS > 0 {
			lines = append(lines, fmt.Sprintf("Progress: %s / %s", formatMillis(progressMS), formatMillis(durationMS)))
		}
		if uri := stringField(track, "uri", ""); uri != "" {
			lines = append(lines, "URI: "+uri)
		}
	}

	return strings.Join(lines, "\n"), true
}

// extractUserAndStatus finds the [profile, playback] object pair, recursing
// into nested arrays.
func extractUserAndStatus(payload any) (map[string]any, map[string]any, bool) {
	array, ok := payload.([]any)
	if !ok {
		return nil, nil, false
	}

	if len(array) == 2 {
		user, userOK := array[0].(map[string]any)
		status, statusOK := array[1].(map[string]any)
		if userOK && statusOK {
			return user, status, true
		}
	}

	for _, item := range array {
		if user, status, found := extractUserAndStatus(item); found {
			return user, status, true
		}
	}
	return nil, nil, false
}

func stringField(obj map[string]any, key, fallback string) string {
	if value, ok := obj[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func numberField(obj map[string]any, key string) int64 {
	value, ok := obj[key].(float64)
	if !ok {
		return 0
	}
	return int64(value)
}

func formatMillis(ms int64) string {
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

func nowPlayingInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolNowPlaying,
		Desc: "Look up what the operator is currently listening to.",
	}
}

func nowPlayingUsage() Usage {
	return Usage{
		WhenToUse:    "The user asks what music is playing right now.",
		WhenNotToUse: "General music discussion with no live-status component.",
	}
}
