package repository

import (
	"context"
	"errors"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	pkgkafka "CoinOdds/pkg/kafka"
)

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// ResultEvent is the record written to the results topic, one per asset.
type ResultEvent struct {
	RunID           string                   `json:"run_id"`
	CalculationDate time.Time                `json:"calculation_date"`
	Diagnostics     *models.Diagnostics      `json:"diagnostics,omitempty"`
	Result          models.ProbabilityResult `json:"result"`
}

// KafkaPublisher writes committed results keyed by symbol.
type KafkaPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaPublisher(p batchProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

var _ domrepo.ResultPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) PublishRun(ctx context.Context, s *models.RunSummary) error {
	if s == nil || len(s.Results) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(s.Results))
	for _, r := range s.Results {
		msgs = append(msgs, pkgkafka.Message{
			Key:     []byte(r.Symbol),
			Headers: map[string]string{"run_id": s.RunID, "direction": string(r.Direction)},
			Value: ResultEvent{
				RunID:           s.RunID,
				CalculationDate: s.CalculationDate,
				Diagnostics:     s.Diagnostics,
				Result:          r,
			},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// FanoutPublisher delivers a run to every publisher and joins their errors.
type FanoutPublisher []domrepo.ResultPublisher

func (f FanoutPublisher) PublishRun(ctx context.Context, s *models.RunSummary) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishRun(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
