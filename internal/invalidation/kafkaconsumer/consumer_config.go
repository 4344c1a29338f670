package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	Res                 int
	DedupeSize          int
}

// FromConfig derives the consumer settings from the relay configuration.
func FromConfig(cfg config.Config) Config {
	brokers := make([]string, 0, len(cfg.Invalidation.Brokers))
	for _, b := range cfg.Invalidation.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return Config{
		Brokers:             brokers,
		Topic:               cfg.Invalidation.Topic,
		GroupID:             cfg.Invalidation.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		Res:                 cfg.Cache.H3Res,
		DedupeSize:          4096,
	}
}
