package providers

import (
	"testing"

	"github.com/BearBump/TrackBot/config"
	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/fake"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/statelisthttp"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/track123http"
	"github.com/stretchr/testify/require"
)

func TestFromConfig_SelectsAdapter(t *testing.T) {
	cfg := &config.Config{TrackBot: config.TrackBotConfig{ProviderMode: "track123", ProviderAPIKey: "k"}}
	p := FromConfig(cfg.WithDefaults())
	_, ok := p.(*track123http.Client)
	require.True(t, ok)
	_, ok = p.(carrier.Registrar)
	require.True(t, ok, "track123 registers ids for push updates")

	cfg = &config.Config{TrackBot: config.TrackBotConfig{ProviderMode: "statelist", ProviderBaseURL: "http://localhost:9000"}}
	_, ok = FromConfig(cfg.WithDefaults()).(*statelisthttp.Client)
	require.True(t, ok)

	cfg = &config.Config{TrackBot: config.TrackBotConfig{ProviderMode: "fake"}}
	_, ok = FromConfig(cfg.WithDefaults()).(*fake.FakeClient)
	require.True(t, ok)
}

func TestFromConfig_Fallbacks(t *testing.T) {
	for _, mode := range []string{"unknown", "statelist"} {
		cfg := &config.Config{TrackBot: config.TrackBotConfig{ProviderMode: mode}}
		_, ok := FromConfig(cfg.WithDefaults()).(*fake.FakeClient)
		require.True(t, ok, mode)
	}
}
