package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type indexedJob struct {
	index int
	job   Job
}

// Pool manages a pool of workers that execute jobs concurrently.
// Results are returned in submission order.
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	collector  *ResultCollector
	submitted  int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a new worker pool bound to ctx with the specified number of workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers*2), // Buffered to prevent blocking
		collector:  NewResultCollector(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ij, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.collector.Set(ij.index, ij.job.Execute(p.ctx))
		}
	}
}

// Submit submits a job to the pool for execution.
// It reports false when the pool was cancelled before the job was queued.
func (p *Pool) Submit(job Job) bool {
	// The queue is closed once the pool is cancelled
	if p.ctx.Err() != nil {
		return false
	}
	ij := indexedJob{index: p.submitted, job: job}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- ij:
		p.submitted++
		return true
	}
}

// Wait waits for all submitted jobs and returns their results in submission order.
// Jobs that never ran because the pool was cancelled have a nil result.
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()
	p.cancelFunc()
	return p.collector.Ordered(p.submitted)
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}

// ResultCollector gathers results from concurrent workers (thread-safe)
type ResultCollector struct {
	results map[int]Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make(map[int]Result),
	}
}

// Set stores the result of the job at index
func (c *ResultCollector) Set(index int, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[index] = result
}

// Ordered returns the first n results by index; missing entries are nil
func (c *ResultCollector) Ordered(n int) []Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Result, n)
	for i := 0; i < n; i++ {
		out[i] = c.results[i]
	}
	return out
}
