// Package kafkaconsumer applies zoning change events from Kafka to the result
// cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/zoning-relay/internal/cache/cellindex"
	obs "github.com/mohammed-shakir/zoning-relay/internal/core/observability"
	"github.com/mohammed-shakir/zoning-relay/internal/invalidation"
	mylog "github.com/mohammed-shakir/zoning-relay/internal/logger"
	"github.com/mohammed-shakir/zoning-relay/internal/mapper"
)

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	index  cellindex.CellIndex
	mapper mapper.Interface
	dedupe *invalidation.RevisionDedupe
}

func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, index cellindex.CellIndex, m mapper.Interface) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		zlog:   mylog.FromContext(base, zl),
		index:  index,
		mapper: m,
		dedupe: invalidation.NewRevisionDedupe(cfg.DedupeSize),
	}
}

// Start consumes zoning change events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.index == nil || c.mapper == nil {
		return errors.New("kafkaconsumer: missing dependencies (index/mapper)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.ClientID = "zoning-relay"
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies one message. Malformed and stale events are dropped
// (nil error, so the offset is committed); cache failures are returned so the
// message is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.dropInvalid(msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.dropInvalid(msg, "validate", err)
		return nil
	}
	dk := ev.DedupeKey()
	if c.dedupe.Stale(dk, ev.Revision) {
		obs.IncInvalidationSkipped("stale")
		c.logger.Debug("stale zoning change skipped", "region", dk, "revision", ev.Revision)
		return nil
	}

	area, err := ev.Area()
	if err != nil {
		c.dropInvalid(msg, "geometry", err)
		return nil
	}
	cells, err := c.mapper.CellsForGeometry(area, c.cfg.Res)
	if err != nil {
		c.dropInvalid(msg, "cells", err)
		return nil
	}

	evicted, err := c.index.Evict(ctx, cells)
	if err != nil {
		obs.ObserveInvalidation(ev.Op, 0, err)
		c.zlog.Error().Err(err).
			Str("kind", "redis_evict").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int("cells", len(cells)).
			Msg("kafka error")
		return fmt.Errorf("evict cached results: %w", err)
	}

	c.dedupe.Applied(dk, ev.Revision)
	obs.ObserveInvalidation(ev.Op, int(evicted.Deleted), nil)

	c.zlog.Info().
		Str("event", "invalidation").
		Str("op", ev.Op).Str("layer", ev.Layer).
		Str("region_id", ev.RegionID).
		Int("cells", len(cells)).Int("keys", len(evicted.Keys)).Int64("deleted", evicted.Deleted).
		Msg("invalidated cached results")
	return nil
}

func (c *Consumer) dropInvalid(msg *sarama.ConsumerMessage, kind string, err error) {
	obs.IncInvalidationSkipped(kind)
	c.zlog.Warn().Err(err).
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("dropping invalid zoning change event")
}
