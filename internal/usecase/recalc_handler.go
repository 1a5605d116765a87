package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	"CoinOdds/pkg/cache"
	pkgkafka "CoinOdds/pkg/kafka"
	"CoinOdds/pkg/logger"
)

const recalcLockKey = "probabilities:recalc:lock"

// RecalcRequestHandler consumes on-demand recalculation requests.
type RecalcRequestHandler struct {
	topic   string
	safe    *SafeCalculator
	locks   cache.Service
	lockTTL time.Duration
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewRecalcRequestHandler(topic string, safe *SafeCalculator, locks cache.Service, lockTTL time.Duration, metrics domrepo.Metrics, log *logger.Logger) *RecalcRequestHandler {
	return &RecalcRequestHandler{
		topic:   topic,
		safe:    safe,
		locks:   locks,
		lockTTL: lockTTL,
		metrics: metrics,
		log:     log.With(logger.String("component", "recalc_handler")),
	}
}

func (h *RecalcRequestHandler) Topic() string { return h.topic }

// Handle answers from the cache when a recent run succeeded and otherwise
// runs the safe calculator. Overlapping requests are dropped. Only
// malformed payloads and transient failures return an error.
func (h *RecalcRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.RecalcRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("recalc_unmarshal")
		h.log.Warn("malformed recalculation request", logger.Error(err))
		// retrying cannot fix the payload
		return nil
	}
	log := h.log.With(logger.String("requested_by", req.RequestedBy), logger.String("reason", req.Reason))

	if cached, ok := h.safe.Cached(ctx, req.Symbols, h.safe.TTL()); ok {
		log.Info("recent run available, skipping recalculation", logger.String("run_id", cached.RunID))
		return nil
	}

	locked, err := h.locks.TryLock(ctx, recalcLockKey, h.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire recalc lock: %w", err)
	}
	if !locked {
		log.Info("recalculation already in progress")
		return nil
	}
	defer func() {
		if err := h.locks.Unlock(context.Background(), recalcLockKey); err != nil {
			log.Warn("release recalc lock", logger.Error(err))
		}
	}()

	summary, err := h.safe.Run(ctx, req.Symbols)
	switch {
	case IsValidation(err):
		var errs []string
		if summary != nil {
			errs = summary.ValidationErrors
		}
		log.Warn("recalculation rejected", logger.Strings("errors", errs))
		return nil
	case errors.Is(err, ErrUnknownSymbol):
		log.Warn("recalculation for unknown symbol", logger.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("recalculate: %w", err)
	}
	log.Info("recalculation finished",
		logger.String("run_id", summary.RunID),
		logger.Int("calculated", summary.Calculated),
		logger.Bool("from_cache", summary.FromCache))
	return nil
}

var _ pkgkafka.MessageHandler = (*RecalcRequestHandler)(nil)
