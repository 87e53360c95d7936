// Package providers builds the configured carrier.Provider for both binaries.
package providers

import (
	"log/slog"

	"github.com/BearBump/TrackBot/config"
	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/fake"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/statelisthttp"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/track123http"
)

// FromConfig picks the adapter by trackbot.provider_mode. Unknown modes and a
// missing base URL for statelist fall back to the offline fake.
func FromConfig(cfg *config.Config) carrier.Provider {
	t := cfg.TrackBot
	switch t.ProviderMode {
	case "track123":
		return track123http.New(t.ProviderBaseURL, t.ProviderAPIKey, track123http.Options{
			Timeout:      t.ProviderTimeout(),
			PollAttempts: t.ProviderPollAttempts,
			PollBackoff:  t.ProviderPollBackoff(),
			Display:      t.DisplayLocation(),
		})
	case "statelist":
		if t.ProviderBaseURL != "" {
			return statelisthttp.New(t.ProviderBaseURL, t.ProviderAPIKey, t.ProviderTimeout(), t.DisplayLocation())
		}
	case "fake":
		return fake.New()
	}
	slog.Warn("provider mode not usable, falling back to fake", "mode", t.ProviderMode)
	return fake.New()
}
