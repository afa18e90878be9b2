// Package kafka produces generated events to Kafka topics. It supports inserts
// only; every insert is fire-and-forget and delivery failures are counted.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"workloadgen/internal/metrics"
	"workloadgen/internal/platform/logger"
	"workloadgen/internal/workload"
)

var deliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "workloadgen",
	Subsystem: "kafka",
	Name:      "delivery_failures_total",
	Help:      "Produced records the broker did not acknowledge.",
}, []string{"topic"})

type Config struct {
	Brokers  []string
	ClientID string
	Linger   time.Duration
}

type Backend struct {
	client   *kgo.Client
	failed   atomic.Int64
	produced atomic.Int64
}

func New(cfg Config) (*Backend, error) {
	metrics.MustRegister(deliveryFailures)
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.MaxBufferedRecords(100_000),
		kgo.ProducerBatchMaxBytes(1024 * 1024),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(cfg.Linger))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Backend{client: client}, nil
}

// Insert buffers the record and returns its key. The produce outlives ctx so
// a record is not failed when the caller's per-call deadline passes.
func (b *Backend) Insert(ctx context.Context, target workload.Target, rec workload.Record) (workload.ID, error) {
	r, err := toRecord(target.String(), rec)
	if err != nil {
		return "", err
	}
	b.client.Produce(context.WithoutCancel(ctx), r, b.onDelivery)
	return rec.Key, nil
}

func (b *Backend) onDelivery(r *kgo.Record, err error) {
	if err != nil {
		b.failed.Add(1)
		deliveryFailures.WithLabelValues(r.Topic).Inc()
		logger.Slog().Warn("kafka delivery failed", "topic", r.Topic, "err", err)
		return
	}
	b.produced.Add(1)
}

func (b *Backend) UpdateByID(context.Context, workload.Target, workload.ID, workload.Patch) (int64, error) {
	return 0, workload.ErrUnsupported
}

func (b *Backend) DeleteByID(context.Context, workload.Target, workload.ID) (int64, error) {
	return 0, workload.ErrUnsupported
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

// Close flushes buffered records then closes the client.
func (b *Backend) Close(ctx context.Context) error {
	err := b.client.Flush(ctx)
	b.client.Close()
	if err != nil {
		return fmt.Errorf("kafka flush: %w", err)
	}
	logger.Slog().Info("kafka producer closed", "delivered", b.produced.Load(), "failed", b.failed.Load())
	return nil
}

// DeliveryFailures reports how many records the broker rejected.
func (b *Backend) DeliveryFailures() int64 { return b.failed.Load() }

func toRecord(topic string, rec workload.Record) (*kgo.Record, error) {
	value, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("kafka encode: %w", err)
	}
	keys := make([]string, 0, len(rec.Headers))
	for k := range rec.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]kgo.RecordHeader, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(rec.Headers[k])})
	}
	r := &kgo.Record{Topic: topic, Value: value, Headers: headers}
	if rec.Key != "" {
		r.Key = []byte(rec.Key)
	}
	return r, nil
}
