package broker

import (
	"fmt"

	"quanttrader/config"
	"quanttrader/internal/ports"
)

// New selects and constructs the broker variant named by the configuration.
// The set of variants is closed; an unknown broker type is a configuration
// error, not a plugin lookup failure.
func New(cfg *config.Config, log ports.Logger) (ports.Broker, error) {
	switch cfg.Broker {
	case config.BrokerSimulated:
		return NewSimulated(log), nil
	case config.BrokerBinance:
		return NewBinance(BinanceConfig{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			AccountID:  cfg.BinanceAccountID,
			UseTestnet: cfg.IsTestnet,
			Logger:     log,
		})
	default:
		return nil, fmt.Errorf("%w: unknown broker type %q", ports.ErrConfigurationError, cfg.Broker)
	}
}
