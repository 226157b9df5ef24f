package tool

import (
	"bytes"
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

const (
	ToolWebSearch = "web_search"

	defaultSearchBaseURL  = "https://api.tavily.com/search"
	maxSearchResponseSize = 2 << 20
)

type SearchConfig struct {
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.tavily.com/search"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// WebSearchTool queries the Tavily search API. It is always registered; with
// no API key configured every invocation reports a configuration error so the
// planner's choice is still auditable.
type WebSearchTool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewWebSearchTool(cfg SearchConfig) *WebSearchTool {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultSearchBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebSearchTool{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *WebSearchTool) Name() string {
	return ToolWebSearch
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"results"`
}

func (t *WebSearchTool) Invoke(ctx context.Context, args map[string]any) (contractx.ToolOutcome, error) {
	if t.apiKey == "" {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("%w: web_search api key is not set", contractx.ErrConfiguration)
	}

	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("%w: web_search requires string arg `query`", contractx.ErrValidation)
	}
	maxResults := clampMaxResults(args["max_results"])

	payload, err := json.Marshal(searchRequest{
		APIKey:        t.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(payload))
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("%w: search request: %w", contractx.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseSize))
	if err != nil {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("%w: read search response: %w", contractx.ErrTransient, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("%w: search http status=%d", contractx.ErrTransient, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.ToolOutcome{Tool: ToolWebSearch}, fmt.Errorf("%w: decode search response: %v", contractx.ErrTransient, err)
	}

	citations := make([]string, 0, len(parsed.Results))
	lines := make([]string, 0, len(parsed.Results)+1)
	if parsed.Answer != "" {
		lines = append(lines, "Summary: "+parsed.Answer)
	}
	for _, item := range parsed.Results {
		citations = append(citations, item.URL)
		lines = append(lines, fmt.Sprintf("- %s (%s)", item.Title, item.URL))
	}
	if len(lines) == 0 {
		lines = append(lines, "No search results returned.")
	}

	return contractx.ToolOutcome{
		Tool:      ToolWebSearch,
		Text:      strings.Join(lines, "\n"),
		Citations: citations,
		Success:   true,
	}, nil
}

func clampMaxResults(raw any) int {
	value := 5
	switch v := raw.(type) {
	case float64:
		value = int(v)
	case int:
		value = v
	}
	if value < 1 {
		return 1
	}
	if value > 10 {
		return 10
	}
	return value
}

func webSearchInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolWebSearch,
		Desc: "Search the web and return a short answer with cited sources.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query":       {Type: schema.String, Desc: "Search query", Required: true},
			"max_results": {Type: schema.Integer, Desc: "Result count, 1-10 (default 5)"},
		}),
	}
}

func webSearchUsage() Usage {
	return Usage{
		Args: map[string]string{
			"query":       "string (required, non-empty)",
			"max_results": "integer 1-10 (optional, default 5)",
		},
		WhenToUse:    "Need external factual information, latest/current info, or web-sourced recommendations.",
		WhenNotToUse: "Casual chat, personal memory recall, or when the answer can be provided from context.",
	}
}
