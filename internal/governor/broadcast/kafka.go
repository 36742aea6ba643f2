package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"casegov/internal/platform/config"
)

// Kafka carries broadcasts over a Kafka topic so consumers on other instances
// see them too. Envelopes are keyed by case id, which keeps per-case ordering
// within a partition; consumers still dedup by sequence because the contract
// is at-least-once.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	local  *Memory
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafka connects to the brokers and starts the consume loop that feeds
// local subscriptions.
func NewKafka(cfg config.KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	k := &Kafka{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
		local:  NewMemory(logger),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go k.run(ctx)
	return k, nil
}

func (k *Kafka) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(env.CaseID),
		Value: raw,
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce envelope: %w", err)
	}
	return nil
}

func (k *Kafka) Subscribe(caseID string) (<-chan Envelope, func()) {
	return k.local.Subscribe(caseID)
}

// run feeds consumed envelopes into the local dispatch registry.
func (k *Kafka) run(ctx context.Context) {
	defer close(k.done)
	for {
		fetches := k.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if k.logger != nil {
				k.logger.Error("kafka fetch error",
					"topic", topic,
					"partition", partition,
					"error", err,
				)
			}
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			var env Envelope
			if err := json.Unmarshal(rec.Value, &env); err != nil {
				if k.logger != nil {
					k.logger.Warn("discarding malformed broadcast envelope", "error", err)
				}
				return
			}
			if env.PageData != nil {
				env.PageData.Related.Normalize()
			}
			k.local.Dispatch(env)
		})
	}
}

func (k *Kafka) Close() error {
	k.cancel()
	<-k.done
	k.client.Close()
	return k.local.Close()
}
