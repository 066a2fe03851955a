package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// Submit errors
var (
	ErrDispatcherStopped = errors.New("dispatcher is not running")
	ErrAlreadyQueued     = errors.New("analysis of this revision is already queued")
	ErrQueueFull         = errors.New("analysis queue is full")
)

// Runner runs one analysis; *Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req Request, sink aiclient.Sink) *Result
}

// DispatcherConfig holds configuration for the Dispatcher
type DispatcherConfig struct {
	MaxWorkers int // maximum number of concurrent analyses
	QueueSize  int // pending requests beyond which Submit refuses work

	// OnDone is called on the worker goroutine after each run
	OnDone func(Request, *Result)
}

// DefaultDispatcherConfig returns default dispatcher configuration
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		MaxWorkers: 4,
		QueueSize:  100,
	}
}

// Dispatcher runs webhook-triggered analyses in the background on a fixed
// set of workers. A request already waiting in the queue for the same
// project, PR and commit is not queued twice.
type Dispatcher struct {
	runner     Runner
	jobs       chan Request
	maxWorkers int
	workerWg   sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	log        *zap.Logger

	mu      sync.Mutex
	running bool
	pending map[string]struct{}

	onDone func(Request, *Result)
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(ctx context.Context, runner Runner, config *DispatcherConfig) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}

	dispatcherCtx, cancel := context.WithCancel(ctx)
	return &Dispatcher{
		runner:     runner,
		jobs:       make(chan Request, config.QueueSize),
		maxWorkers: config.MaxWorkers,
		ctx:        dispatcherCtx,
		cancel:     cancel,
		log:        logger.Named("dispatcher"),
		pending:    make(map[string]struct{}),
		onDone:     config.OnDone,
	}
}

func jobKey(req Request) string {
	var projectID uint
	if req.Project != nil {
		projectID = req.Project.ID
	}
	return fmt.Sprintf("%d:%d:%s", projectID, req.PRNumber, req.CommitHash)
}

// Start starts the workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true

	d.log.Info("Starting dispatcher", zap.Int("workers", d.maxWorkers))
	for i := 0; i < d.maxWorkers; i++ {
		d.workerWg.Add(1)
		go d.worker(i)
	}
}

// Submit queues req without blocking
func (d *Dispatcher) Submit(req Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrDispatcherStopped
	}
	key := jobKey(req)
	if _, dup := d.pending[key]; dup {
		d.log.Debug("Analysis already queued, skipping", zap.String("job", key))
		return ErrAlreadyQueued
	}

	select {
	case d.jobs <- req:
		d.pending[key] = struct{}{}
		return nil
	default:
		d.log.Warn("Analysis queue full, dropping request", zap.String("job", key))
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.workerWg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case req, ok := <-d.jobs:
			if !ok {
				return
			}
			key := jobKey(req)
			d.mu.Lock()
			delete(d.pending, key)
			d.mu.Unlock()

			start := time.Now()
			res := d.runner.Run(d.ctx, req, nil)
			d.log.Info("Background analysis finished",
				zap.Int("worker_id", id),
				zap.String("job", key),
				zap.String("outcome", string(res.Outcome)),
				zap.Duration("duration", time.Since(start)),
			)
			if d.onDone != nil {
				d.onDone(req, res)
			}
		}
	}
}

// Pending returns the number of queued, not yet started requests
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels in-flight runs, drops queued ones and waits for the workers
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	close(d.jobs)
	d.mu.Unlock()

	d.workerWg.Wait()
	d.log.Info("Dispatcher stopped")
}
