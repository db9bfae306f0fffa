package scheduler

import "sync"

// workerPool runs jobs on a fixed set of goroutines. Submission is a
// blocking handoff: submit waits until a worker takes the task.
type workerPool struct {
	size      int
	tasks     chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	cond   *sync.Cond
	busy   int
	closed bool
}

func newWorkerPool(size int) *workerPool {
	p := &workerPool{
		size:  size,
		tasks: make(chan func()),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *workerPool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.mu.Lock()
		p.busy--
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// submit hands a task to a worker, blocking until one is free. Returns false
// after shutdown.
func (p *workerPool) submit(task func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.busy++
	p.mu.Unlock()
	p.tasks <- task
	return true
}

// blockUntilAvailable waits until at least one worker is free and returns
// the number of free workers; 0 means the pool has shut down.
func (p *workerPool) blockUntilAvailable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.busy >= p.size && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return 0
	}
	return p.size - p.busy
}

// markClosed rejects further submissions and unblocks waiters without
// touching the task channel, so it is safe while a submitter still runs.
func (p *workerPool) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// shutdown stops accepting tasks and closes the task channel. Callers must
// guarantee no submit is in flight. With wait set it blocks until running
// tasks finish.
func (p *workerPool) shutdown(wait bool) {
	p.markClosed()
	p.closeOnce.Do(func() { close(p.tasks) })
	if wait {
		p.wg.Wait()
	}
}
