// Package backend selects the vendor client named in the configuration.
package backend

import (
	"fmt"

	"lightctl/config"
	"lightctl/internal/application"
	"lightctl/internal/infra/homeassistant"
	"lightctl/internal/infra/hubspace"
	"lightctl/internal/infra/tuya"
)

func New(cfg config.VendorConfig) (application.Vendor, error) {
	switch cfg.Backend {
	case "hubspace":
		return hubspace.NewClient(cfg.Hubspace.Email, cfg.Hubspace.Password), nil
	case "tuya":
		return tuya.NewClient(cfg.Tuya.ClientID, cfg.Tuya.Secret, cfg.Tuya.Region), nil
	case "homeassistant":
		return homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token), nil
	default:
		return nil, fmt.Errorf("unknown vendor backend %q", cfg.Backend)
	}
}
