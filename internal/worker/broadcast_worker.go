package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/events"
	"signaldesk/internal/metrics"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("broadcast queue is full")

type EventSubscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// BroadcastWorker рассылает опубликованные сигналы пользователям с доступом.
type BroadcastWorker struct {
	repo       domain.Repository
	access     domain.AccessService
	deliveries domain.DeliveryService
	notifier   domain.SignalNotifier
	retry      RetryPolicy
	workers    int
	queue      chan int64
	logger     *zerolog.Logger
}

func NewBroadcastWorker(
	repo domain.Repository,
	access domain.AccessService,
	deliveries domain.DeliveryService,
	notifier domain.SignalNotifier,
	cfg config.BroadcastConfig,
	logger *zerolog.Logger,
) *BroadcastWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = models.BroadcastQueueSize
	}
	return &BroadcastWorker{
		repo:       repo,
		access:     access,
		deliveries: deliveries,
		notifier:   notifier,
		retry:      RetryPolicyFromConfig(cfg),
		workers:    workers,
		queue:      make(chan int64, size),
		logger:     logger,
	}
}

// Subscribe wires the worker to signal_published events.
func (w *BroadcastWorker) Subscribe(bus EventSubscriber) {
	bus.Subscribe(events.EventSignalPublished, w.HandleEvent)
}

func (w *BroadcastWorker) HandleEvent(event *events.Event) error {
	var payload events.SignalPublishedPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}
	return w.Enqueue(payload.SignalID)
}

// Enqueue never blocks the publisher.
func (w *BroadcastWorker) Enqueue(signalID int64) error {
	select {
	case w.queue <- signalID:
		metrics.SetBroadcastQueue(len(w.queue))
		return nil
	default:
		w.logger.Warn().Int64("signal_id", signalID).Msg("broadcast queue full, signal dropped")
		metrics.IncBroadcast("dropped")
		return ErrQueueFull
	}
}

// Start runs the pool and blocks until ctx is done.
func (w *BroadcastWorker) Start(ctx context.Context) {
	w.logger.Info().Int("workers", w.workers).Msg("broadcast worker started")
	defer w.logger.Info().Msg("broadcast worker stopped")

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-w.queue:
					metrics.SetBroadcastQueue(len(w.queue))
					if err := w.Broadcast(ctx, id); err != nil {
						w.logger.Error().Err(err).Int64("signal_id", id).Msg("broadcast failed")
					}
				}
			}
		}()
	}
	wg.Wait()
}

// Broadcast sends one signal to every user allowed to see it.
func (w *BroadcastWorker) Broadcast(ctx context.Context, signalID int64) error {
	sig, err := w.repo.GetSignal(ctx, signalID)
	if err != nil {
		return err
	}
	users, err := w.repo.ListUsers(ctx)
	if err != nil {
		return err
	}

	var sent, skipped, failed int
	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if u.IsBanned() || u.ID == sig.CreatedBy {
			continue
		}
		switch outcome := w.deliver(ctx, u, sig); outcome {
		case "delivered":
			sent++
		case "failed", "error":
			failed++
		default:
			skipped++
		}
	}

	w.logger.Info().
		Int64("signal_id", sig.ID).
		Str("symbol", sig.Symbol).
		Int("sent", sent).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("broadcast finished")
	return nil
}

func (w *BroadcastWorker) deliver(ctx context.Context, u *models.User, sig *models.Signal) (outcome string) {
	defer func() { metrics.IncBroadcast(outcome) }()
	log := w.logger.With().Int64("signal_id", sig.ID).Int64("user_id", u.ID).Logger()

	prev, err := w.repo.FindDelivery(ctx, sig.ID, u.ID)
	if err != nil {
		log.Error().Err(err).Msg("delivery lookup failed")
		return "error"
	}
	if prev != nil && prev.DeliveredAt != nil {
		return "already_delivered"
	}

	viewer, err := w.access.EnsureUserCanViewSignals(ctx, models.ByUserID(u.ID))
	if errors.Is(err, domain.ErrForbidden) {
		return "skipped"
	}
	if err != nil {
		log.Error().Err(err).Msg("access check failed")
		return "error"
	}

	if err := w.retry.Do(ctx, func() error {
		return w.notifier.NotifySignal(ctx, viewer, sig)
	}); err != nil {
		log.Warn().Err(err).Bool("permanent", IsPermanent(err)).Msg("signal push failed")
		return "failed"
	}

	if _, err := w.deliveries.MarkDelivered(ctx, sig.ID, u.ID, nil); err != nil {
		log.Error().Err(err).Msg("mark delivered failed")
		return "error"
	}
	return "delivered"
}
