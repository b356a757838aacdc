package inference

import (
	"context"
	"log"
	"strings"
	"time"
)

// Poller waits for image jobs to reach a terminal state.
type Poller struct {
	Fetcher     JobFetcher
	Interval    time.Duration
	MaxAttempts int // status checks before giving up; 0 means no limit
}

// NewPoller returns a Poller checking every interval, at most maxAttempts times.
func NewPoller(fetcher JobFetcher, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{
		Fetcher:     fetcher,
		Interval:    interval,
		MaxAttempts: maxAttempts,
	}
}

// Await returns the job once it has succeeded with output. A job that is
// already terminal is checked without contacting the provider; otherwise
// the status is fetched immediately and then once per Interval.
func (p *Poller) Await(ctx context.Context, job Job) (Job, error) {
	if job.Status.Terminal() {
		return settle(job)
	}

	for attempt := 1; ; attempt++ {
		if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
			return job, &ProviderTimeoutError{JobID: job.ID, Attempts: p.MaxAttempts}
		}
		if attempt > 1 {
			if err := sleep(ctx, p.Interval); err != nil {
				return job, err
			}
		}

		current, err := p.Fetcher.GetJob(ctx, job.ID)
		if err != nil {
			return job, err
		}
		job = current
		if job.Status.Terminal() {
			return settle(job)
		}
		log.Printf("[poller] job %s status: %s", job.ID, job.Status)
	}
}

func settle(job Job) (Job, error) {
	if job.Status == StatusFailed {
		reason := job.Error
		if reason == "" {
			reason = "unknown error"
		}
		return job, &JobFailedError{JobID: job.ID, Reason: reason}
	}

	var urls []string
	for _, out := range job.Output {
		if s := strings.TrimSpace(out); s != "" {
			urls = append(urls, s)
		}
	}
	if len(urls) == 0 {
		return job, &JobFailedError{JobID: job.ID, Reason: "No image URL in output"}
	}
	job.Output = urls
	return job, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
