package model

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
	openrouterx "github.com/wrenhq/wren/pkg/openrouter"
)

const (
	ProviderAuto       = "auto"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Select resolves the model backend once at startup. Forcing openrouter
// without credentials is a configuration error; auto falls back to the mock.
func Select(provider string, cfg openrouterx.Config) (contractx.ModelInvoker, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderMock:
		log.Info().Str("provider", ProviderMock).Msg("model backend selected")
		return NewMockInvoker(), nil
	case ProviderOpenRouter:
		invoker, err := NewOpenRouterInvoker(cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("provider", ProviderOpenRouter).Str("model", cfg.Model).Msg("model backend selected")
		return invoker, nil
	case ProviderAuto, "":
		if cfg.HasCredentials() {
			invoker, err := NewOpenRouterInvoker(cfg)
			if err != nil {
				return nil, err
			}
			log.Info().Str("provider", ProviderOpenRouter).Str("model", cfg.Model).Msg("model backend selected")
			return invoker, nil
		}
		log.Info().Str("provider", ProviderMock).Msg("no model credentials, using mock backend")
		return NewMockInvoker(), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", contractx.ErrConfiguration, provider)
	}
}
