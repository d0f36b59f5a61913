// Package worker runs the event-queue consumers: correlation of
// provider-request events and session analytics recalculation, plus a
// cron sweep that catches sessions the debounce missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/config"
	"github.com/zulandar/stenograph/internal/correlate"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/notify"
	"github.com/zulandar/stenograph/internal/queue"
	"github.com/zulandar/stenograph/internal/summarize"
	"gorm.io/gorm"
)

// CompletionFactory builds the per-tenant completion capability used
// for summarization.
type CompletionFactory func(db *gorm.DB, tenantID uint) (summarize.CompletionFunc, error)

// Worker consumes the event queue with a fixed number of slots. Each
// slot processes one message at a time; different slots may work on
// different sessions concurrently.
type Worker struct {
	db         *gorm.DB
	store      archive.Store
	queue      *queue.Queue
	correlator *correlate.Correlator
	notifier   notify.Notifier

	completionFor CompletionFactory
	pollInterval  time.Duration
	slots         int
	sweepCron     string
}

// Opts holds parameters for creating a Worker.
type Opts struct {
	DB     *gorm.DB
	Store  archive.Store
	Queue  *queue.Queue
	Config config.WorkerConfig

	// Notifier defaults to a no-target composite.
	Notifier notify.Notifier
	// CompletionFor defaults to the settings-backed Anthropic client.
	CompletionFor CompletionFactory
}

// New creates a Worker.
func New(opts Opts) (*Worker, error) {
	if opts.DB == nil || opts.Store == nil || opts.Queue == nil {
		return nil, fmt.Errorf("worker: db, store and queue are required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewMulti()
	}
	completionFor := opts.CompletionFor
	if completionFor == nil {
		completionFor = summarize.NewCompletion
	}

	slots := opts.Config.Slots
	if slots < 1 {
		slots = 1
	}
	poll := time.Duration(opts.Config.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}

	return &Worker{
		db:            opts.DB,
		store:         opts.Store,
		queue:         opts.Queue,
		correlator:    correlate.New(opts.DB, opts.Store, opts.Queue),
		notifier:      notifier,
		completionFor: completionFor,
		pollInterval:  poll,
		slots:         slots,
		sweepCron:     opts.Config.SweepCron,
	}, nil
}

// Run consumes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.sweepCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.sweepCron, func() { w.Sweep() }); err != nil {
			return fmt.Errorf("worker: sweep schedule %q: %w", w.sweepCron, err)
		}
		c.Start()
		defer c.Stop()
	}

	var wg sync.WaitGroup
	for i := 0; i < w.slots; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consume(ctx, fmt.Sprintf("worker-%d", slot))
		}(i)
	}
	wg.Wait()
	return nil
}

func (w *Worker) consume(ctx context.Context, consumer string) {
	for {
		msg, err := w.queue.Receive(consumer)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) {
				log.Printf("worker: %s: receive: %v", consumer, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}

		if err := w.Handle(ctx, msg); err != nil {
			log.Printf("worker: %s: message %d (%s): %v", consumer, msg.ID, msg.Type, err)
			if err := w.queue.Nack(msg.ID); err != nil {
				log.Printf("worker: %s: nack %d: %v", consumer, msg.ID, err)
			}
			continue
		}
		if err := w.queue.Ack(msg.ID); err != nil {
			log.Printf("worker: %s: ack %d: %v", consumer, msg.ID, err)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Handle dispatches one claimed message. Unknown types are dropped so a
// poison message cannot wedge the queue.
func (w *Worker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	switch msg.Type {
	case queue.TypeProviderRequest:
		var m queue.ProviderRequestMessage
		if err := queue.DecodePayload(msg, &m); err != nil {
			log.Printf("worker: %v", err)
			return nil
		}
		return w.correlator.Process(m)

	case queue.TypeUpdateSession:
		var m queue.UpdateSessionMessage
		if err := queue.DecodePayload(msg, &m); err != nil {
			log.Printf("worker: %v", err)
			return nil
		}
		return w.updateSession(ctx, m)

	default:
		log.Printf("worker: dropping message %d with unknown type %q", msg.ID, msg.Type)
		return nil
	}
}
