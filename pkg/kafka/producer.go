package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var ErrNoBrokers = errors.New("kafka: at least one broker is required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var compressionCodecs = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Message is one record of a batch. Value is JSON encoded unless it is
// already []byte or string.
type Message struct {
	Key     []byte
	Value   any
	Headers map[string]string
}

func (m Message) toKafka(topic string, at time.Time) (kafka.Message, error) {
	var value []byte
	switch v := m.Value.(type) {
	case []byte:
		value = v
	case string:
		value = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("encode value for key %q: %w", m.Key, err)
		}
		value = b
	}

	out := kafka.Message{Topic: topic, Key: m.Key, Value: value, Time: at}
	if len(m.Headers) > 0 {
		keys := make([]string, 0, len(m.Headers))
		for k := range m.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Headers = append(out.Headers, kafka.Header{Key: k, Value: []byte(m.Headers[k])})
		}
	}
	return out, nil
}

// Producer publishes keyed records. The hash balancer keeps every record
// with the same key on one partition.
type Producer struct {
	writer      messageWriter
	compression string
	metrics     *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		codec = kafka.Gzip
	}
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
	}, cfg.Compression), nil
}

func newProducer(w messageWriter, compression string) *Producer {
	return &Producer{writer: w, compression: compression, metrics: loadProducerMetrics()}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch hands all records to the writer in one call. Nothing is
// written when any record fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	msgs := make([]kafka.Message, len(batch))
	var size int
	for i, m := range batch {
		km, err := m.toKafka(topic, start.UTC())
		if err != nil {
			return err
		}
		msgs[i] = km
		size += len(km.Value)
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	p.metrics.observe(topic, p.compression, size, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	sharedProducerMetrics *producerMetrics
	producerMetricsOnce   sync.Once
)

// loadProducerMetrics registers the collectors on first use; every producer
// in the process shares them.
func loadProducerMetrics() *producerMetrics {
	producerMetricsOnce.Do(func() {
		sharedProducerMetrics = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "coinodds_kafka_producer_messages_total",
				Help: "Messages published to Kafka",
			}, []string{"topic", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "coinodds_kafka_producer_bytes_total",
				Help: "Payload bytes published",
			}, []string{"topic", "compression"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "coinodds_kafka_producer_publish_seconds",
				Help:    "Publish latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return sharedProducerMetrics
}

func (m *producerMetrics) observe(topic, compression string, size, count int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, compression).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
