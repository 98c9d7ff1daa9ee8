package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/events"
)

// enrichmentJob carries the texts folded into a ticket at creation time.
type enrichmentJob struct {
	TicketID string
	Texts    []string
}

// Worker refines just-created tickets in the background. Completion is not
// awaited by anything: tickets are visible to operators before enrichment
// starts. Failures leave the ticket with its classification-derived fields.
type Worker struct {
	Store      Datastore
	Classifier MessageClassifier
	Events     *events.Producer
	Logger     zerolog.Logger
	Timeout    time.Duration

	jobs chan enrichmentJob
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewWorker(store Datastore, cls MessageClassifier, producer *events.Producer, logger zerolog.Logger, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Worker{
		Store:      store,
		Classifier: cls,
		Events:     producer,
		Logger:     logger,
		Timeout:    timeout,
		jobs:       make(chan enrichmentJob, 64),
	}
}

// Start launches the background loop. The loop drains queued jobs on Close
// and abandons in-flight work when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-w.jobs:
				if !ok {
					return
				}
				w.process(ctx, job)
			}
		}
	}()
}

// Enqueue schedules enrichment without blocking ticket creation. A full
// queue drops the job: the ticket keeps its classification-derived fields.
func (w *Worker) Enqueue(ticketID string, texts []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.jobs <- enrichmentJob{TicketID: ticketID, Texts: texts}:
	default:
		w.Logger.Warn().Str("ticket_id", ticketID).Msg("enrichment queue full, dropping job")
	}
}

// Close stops intake and waits for the loop to drain.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Worker) process(ctx context.Context, job enrichmentJob) {
	callCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	enrichment := w.Classifier.Enrich(callCtx, job.Texts)

	if err := w.Store.UpdateTicketEnrichment(callCtx, job.TicketID, enrichment); err != nil {
		w.Logger.Error().Err(err).Str("ticket_id", job.TicketID).Msg("enrichment update failed")
		return
	}

	if w.Events != nil {
		w.Events.Emit(callCtx, events.TicketEnriched, job.TicketID, map[string]any{
			"category": enrichment.Category,
			"urgency":  enrichment.Urgency,
		})
	}

	w.Logger.Info().
		Str("ticket_id", job.TicketID).
		Str("category", string(enrichment.Category)).
		Int("urgency", enrichment.Urgency).
		Msg("ticket enriched")
}
