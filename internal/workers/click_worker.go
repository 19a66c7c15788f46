package workers

import (
	"sync"

	"shortlink/internal/models"
	"shortlink/internal/services"

	"go.uber.org/zap"
)

// ClickRecorder drains click events off a buffered channel and persists
// them. Recording is decoupled from the redirect path: the handler
// enqueues and moves on, and any failure here is logged, never surfaced.
type ClickRecorder struct {
	events    chan models.Click
	analytics *services.AnalyticsService
	urls      *services.URLService
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewClickRecorder(bufferSize int, analytics *services.AnalyticsService, urls *services.URLService, log *zap.Logger) *ClickRecorder {
	return &ClickRecorder{
		events:    make(chan models.Click, bufferSize),
		analytics: analytics,
		urls:      urls,
		log:       log,
	}
}

// Start launches workerCount draining goroutines.
func (r *ClickRecorder) Start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.log.Info("click workers started", zap.Int("count", workerCount))
}

// Enqueue hands a click to the workers without blocking. When the buffer
// is full the event is dropped; the persistent counter on the link is
// authoritative for totals, so a dropped event only thins the analytics
// detail.
func (r *ClickRecorder) Enqueue(click models.Click) bool {
	select {
	case r.events <- click:
		return true
	default:
		r.log.Warn("click buffer full, dropping event",
			zap.String("short_code", click.ShortCode))
		return false
	}
}

// Stop closes the queue and waits for in-flight events to be persisted.
func (r *ClickRecorder) Stop() {
	close(r.events)
	r.wg.Wait()
}

func (r *ClickRecorder) worker() {
	defer r.wg.Done()
	for click := range r.events {
		if err := r.analytics.RecordClick(click); err != nil {
			r.log.Error("failed to record click",
				zap.String("short_code", click.ShortCode), zap.Error(err))
		}
		if err := r.urls.IncrementClickCount(click.ShortCode); err != nil {
			r.log.Error("failed to increment click count",
				zap.String("short_code", click.ShortCode), zap.Error(err))
		}
	}
}
