package topics

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler refreshes a Service on a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	return &Scheduler{
		service:  service,
		interval: interval,
		timeout:  time.Minute,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start refreshes once immediately, then every interval until Stop.
func (s *Scheduler) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Stop ends the refresh loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	s.refresh()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Printf("[topics] Running topic refresh at %v", time.Now())
	if _, err := s.service.Refresh(ctx); err != nil {
		log.Printf("[topics] Error refreshing topics: %v", err)
	}
}
