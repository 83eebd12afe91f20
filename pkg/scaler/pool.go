package scaler

import (
	"sync"
)

// pool runs controller writes concurrently with a bound on parallelism,
// collecting failures for the caller to report once the batch drains.
type pool struct {
	sem chan struct{}
	wg  sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func newPool(size int) *pool {
	return &pool{sem: make(chan struct{}, size)}
}

// call schedules fn on the pool
func (p *pool) call(fn func() error) {
	p.wg.Add(1)
	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		if err := fn(); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}()
}

// wait blocks until every scheduled call has finished and returns the
// accumulated failures
func (p *pool) wait() []error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := p.errs
	p.errs = nil
	return errs
}
