package sources

import (
	"log/slog"

	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
)

// catalogEntry binds a source id to its constructor and the environment
// variable its credential is read from when the config does not name one.
type catalogEntry struct {
	id            string
	factory       integration.Factory
	defaultKeyEnv string
}

// catalog lists every built-in adapter in registration order.
var catalog = []catalogEntry{
	{samID, NewSAM, "SAM_API_KEY"},
	{usaspendingID, NewUSASpending, ""},
	{usajobsID, NewUSAJobs, "USAJOBS_API_KEY"},
	{clearancejobsID, NewClearanceJobs, "CLEARANCEJOBS_API_KEY"},
	{govinfoID, NewGovInfo, "GOVINFO_API_KEY"},
	{regulationsID, NewRegulations, "REGULATIONS_API_KEY"},
	{dvidsID, NewDVIDS, "DVIDS_API_KEY"},
	{redditID, NewReddit, ""},
	{mastodonID, NewMastodon, "MASTODON_ACCESS_TOKEN"},
	{websearchID, NewWebSearch, "BRAVE_API_KEY"},
}

// RegisterAll installs every built-in adapter that is enabled in cfg.
// Each factory is wrapped so the adapter receives its own integration
// config section rather than the registry's shared one.
func RegisterAll(reg *integration.Registry, cfg *config.Config) error {
	for _, entry := range catalog {
		sourceCfg := integrationConfig(cfg, entry.id, entry.defaultKeyEnv)
		if !sourceCfg.IsEnabled() {
			slog.Info("Integration disabled by configuration", "source_id", entry.id)
			continue
		}
		entry := entry
		wrapped := func(deps integration.Deps) integration.Integration {
			deps.Config = sourceCfg
			return entry.factory(deps)
		}
		if err := reg.Register(entry.id, wrapped); err != nil {
			return err
		}
	}
	return nil
}

// integrationConfig resolves the config section for one source, filling
// in the default credential env var when the user did not set one.
func integrationConfig(cfg *config.Config, id, defaultKeyEnv string) *config.IntegrationConfig {
	var c *config.IntegrationConfig
	if cfg != nil && cfg.Integrations != nil {
		c = cfg.Integrations[id]
	}
	if c == nil {
		c = &config.IntegrationConfig{}
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultKeyEnv
	}
	return c
}
