package tool

import "fmt"

// DefaultCatalog registers the built-in tool set. All tools are registered
// regardless of credentials so that planner choices stay auditable; tools
// missing configuration report it per invocation.
func DefaultCatalog(searchCfg SearchConfig, nowPlayingCfg NowPlayingConfig) (*Catalog, error) {
	catalog := NewCatalog()

	if err := catalog.Register(webSearchInfo(), webSearchUsage(), NewWebSearchTool(searchCfg)); err != nil {
		return nil, fmt.Errorf("register web_search: %w", err)
	}
	if err := catalog.Register(currentDateTimeInfo(), currentDateTimeUsage(), NewCurrentDateTimeTool()); err != nil {
		return nil, fmt.Errorf("register current_datetime: %w", err)
	}
	if err := catalog.Register(nowPlayingInfo(), nowPlayingUsage(), NewNowPlayingTool(NowPlayingConfig{URL: nowPlayingCfg.URL, Timeout: nowPlayingCfg.Timeout})); err != nil {
		return nil, fmt.Errorf("register now_playing: %w", err)
	}
	if err := catalog.Register(mathEvaluateInfo(), mathEvaluateUsage(), NewMathEvaluateTool()); err != nil {
		return nil, fmt.Errorf("register math.evaluate: %w", err)
	}

	return catalog, nil
}
