package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"transcription-icd-coder/internal/models"
)

// Handler receives decoded row events.
type Handler interface {
	OnCoded(ev models.RowCoded)
	OnFailed(ev models.RowFailed)
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	TopicCoded  string
	TopicFailed string
	Since       time.Duration // how far back to start reading
}

// Consumer reads row events back from the coded and failed topics.
type Consumer struct {
	cfg    ConsumerConfig
	lookup func(ctx context.Context, topic string) ([]int, error)

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewConsumer creates a consumer for the configured topics. No consumer
// group is used so every run sees the full window.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{cfg: cfg, lookup: brokerPartitions(cfg.Brokers)}
}

// brokerPartitions asks the first reachable broker for a topic's partitions.
func brokerPartitions(brokers []string) func(ctx context.Context, topic string) ([]int, error) {
	return func(ctx context.Context, topic string) ([]int, error) {
		lastErr := errors.New("no brokers configured")
		for _, broker := range brokers {
			parts, err := kafka.DefaultDialer.LookupPartitions(ctx, "tcp", broker, topic)
			if err != nil {
				lastErr = err
				continue
			}
			ids := make([]int, 0, len(parts))
			for _, p := range parts {
				ids = append(ids, p.ID)
			}
			sort.Ints(ids)
			return ids, nil
		}
		return nil, fmt.Errorf("lookup partitions of %s: %w", topic, lastErr)
	}
}

// open creates one reader per partition of every configured topic.
// Keys are hashed across partitions, so reading only one would miss rows.
func (c *Consumer) open(ctx context.Context) ([]*kafka.Reader, error) {
	var readers []*kafka.Reader
	for _, topic := range []string{c.cfg.TopicCoded, c.cfg.TopicFailed} {
		if topic == "" {
			continue
		}
		partitions, err := c.lookup(ctx, topic)
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, err
		}
		for _, partition := range partitions {
			readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
				Brokers:   c.cfg.Brokers,
				Topic:     topic,
				Partition: partition,
				MinBytes:  1,
				MaxBytes:  10e6,
			}))
		}
	}

	c.mu.Lock()
	c.readers = append(c.readers, readers...)
	c.mu.Unlock()
	return readers, nil
}

// Run reads every partition of every topic until ctx is done.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	readers, err := c.open(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, r := range readers {
		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			c.consume(ctx, r, h)
		}(r)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consume(ctx context.Context, r *kafka.Reader, h Handler) {
	topic := r.Config().Topic
	partition := r.Config().Partition
	if c.cfg.Since > 0 {
		if err := r.SetOffsetAt(ctx, time.Now().Add(-c.cfg.Since)); err != nil {
			log.Warn().Err(err).Str("topic", topic).Int("partition", partition).Msg("Failed to seek, reading from current offset")
		}
	}

	log.Info().Str("topic", topic).Int("partition", partition).Dur("since", c.cfg.Since).Msg("Consuming row events")

	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := Dispatch(msg, h); err != nil {
			log.Warn().Err(err).Str("topic", topic).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
		}
	}
}

// Dispatch decodes msg by its eventType header and hands it to h.
func Dispatch(msg kafka.Message, h Handler) error {
	eventType := header(msg, "eventType")
	switch eventType {
	case EventCoded:
		var ev models.RowCoded
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("decode coded event: %w", err)
		}
		h.OnCoded(ev)
	case EventFailed:
		var ev models.RowFailed
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("decode failed event: %w", err)
		}
		h.OnFailed(ev)
	default:
		return fmt.Errorf("unknown event type %q", eventType)
	}
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Close closes all readers.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for _, r := range c.readers {
		if e := r.Close(); e != nil {
			err = e
		}
	}
	return err
}
