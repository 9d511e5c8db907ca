package router

import (
	"context"
	"fmt"
	"hash/fnv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolScope/internal/model"
)

const workerQueueSize = 64

// Handler applies a single event. *Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, event model.Event) error
}

// Dispatcher fans events out to workers by pool so that events of one pool
// are applied in arrival order while disjoint pools proceed concurrently.
type Dispatcher struct {
	handler Handler
	workers int
	logger  *zap.Logger
}

func NewDispatcher(handler Handler, workers int, logger *zap.Logger) (*Dispatcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handler: handler, workers: workers, logger: logger}, nil
}

// Run consumes events until the channel is closed. The first handler error
// cancels the remaining work and is returned.
func (d *Dispatcher) Run(ctx context.Context, events <-chan model.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan model.Event, d.workers)
	for i := range queues {
		queue := make(chan model.Event, workerQueueSize)
		queues[i] = queue
		g.Go(func() error {
			for event := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := d.handler.Handle(gctx, event); err != nil {
					d.logger.Error("event failed",
						zap.String("kind", string(event.Kind)),
						zap.String("pool", event.PoolKey()),
						zap.String("log_id", event.LogID),
						zap.Error(err),
					)
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, queue := range queues {
				close(queue)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case event, ok := <-events:
				if !ok {
					return nil
				}
				select {
				case queues[d.shard(event)] <- event:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})
	return g.Wait()
}

// Apply runs a finite batch and returns once every event has been handled.
func (d *Dispatcher) Apply(ctx context.Context, batch []model.Event) error {
	if len(batch) == 0 {
		return nil
	}
	if d.workers == 1 {
		for _, event := range batch {
			if err := d.handler.Handle(ctx, event); err != nil {
				return err
			}
		}
		return nil
	}

	events := make(chan model.Event)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx, events)
	}()

	for _, event := range batch {
		select {
		case events <- event:
		case err := <-errCh:
			return err
		}
	}
	close(events)
	return <-errCh
}

func (d *Dispatcher) shard(event model.Event) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(event.PoolKey()))
	return int(h.Sum32() % uint32(d.workers))
}
