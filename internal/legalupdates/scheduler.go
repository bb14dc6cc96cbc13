package legalupdates

import (
	"context"
	"time"

	"legal-ai-assistant/internal/logger"

	"github.com/go-co-op/gocron"
)

const refreshTag = "legal-updates-refresh"

// Sink stores collected records and reports how many were new.
type Sink func(ctx context.Context, records []Record) (int, error)

// Scheduler periodically pulls the feed into a sink.
type Scheduler struct {
	scheduler *gocron.Scheduler
	feed      *Feed
	sink      Sink
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(feed *Feed, sink Sink, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Scheduler{
		scheduler: s,
		feed:      feed,
		sink:      sink,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ScheduleRefresh registers the refresh job on a cron expression.
func (s *Scheduler) ScheduleRefresh(cronExpr string) error {
	_, err := s.scheduler.Cron(cronExpr).Tag(refreshTag).Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if _, err := s.RefreshNow(ctx); err != nil {
			logger.Error("Scheduled legal updates refresh failed", "error", err)
		}
	})
	return err
}

// RefreshNow collects the feed once and hands the records to the sink.
func (s *Scheduler) RefreshNow(ctx context.Context) (int, error) {
	start := time.Now()
	records := s.feed.Collect(ctx)
	if len(records) == 0 {
		logger.Info("Legal updates refresh found no records", "sources", s.feed.SourceNames())
		return 0, nil
	}

	stored, err := s.sink(ctx, records)
	if err != nil {
		return stored, err
	}

	logger.Info("Legal updates refreshed",
		"collected", len(records),
		"stored", stored,
		"duration", time.Since(start).String(),
	)
	return stored, nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}
