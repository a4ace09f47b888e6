package queue

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/metrics"
)

const (
	defaultWorkers = 2
	channelBuffer  = 64
)

// Dispatcher moves session transitions off the derivation path and hands
// them to the audit service. Transitions of one user always land on the
// same worker, so they are recorded in the order they happened.
type Dispatcher struct {
	workers []chan domain.SessionTransition
	service ports.AuditService
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.AuditService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.SessionTransition, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.SessionTransition, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue never blocks the caller: when the worker's buffer is full the
// transition is dropped and false is returned.
func (d *Dispatcher) Enqueue(t domain.SessionTransition) bool {
	idx := d.shardIndex(t.IdentityID)
	select {
	case d.workers[idx] <- t:
		metrics.AuditQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return true
	default:
		d.log.Warn().Int64("user_id", t.IdentityID).Int("worker_id", idx).Msg("audit queue full, transition dropped")
		return false
	}
}

// Observe adapts Enqueue to the session machine's transition hook.
func (d *Dispatcher) Observe(_ context.Context, t domain.SessionTransition) {
	d.Enqueue(t)
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID int64) int {
	if userID < 0 {
		userID = -userID
	}
	return int(userID % int64(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.SessionTransition) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			metrics.AuditQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			if err := d.service.Record(ctx, t); err != nil {
				d.log.Error().Err(err).
					Int64("user_id", t.IdentityID).
					Int("worker_id", id).
					Msg("transition audit failed")
			}
		}
	}
}
