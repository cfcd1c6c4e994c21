package service

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// ScanScheduler decouples webhook acknowledgment from the actual scan work.
// Notifications are acknowledged immediately and enqueued; a single
// background loop drains the queue, running each scan's files through a
// bounded worker pool. Duplicate deliveries while a scan is queued collapse
// into one extra scan at most.
type ScanScheduler struct {
	ingestor    *Ingestor
	queue       chan struct{}
	concurrency int
}

func NewScanScheduler(ingestor *Ingestor, queueDepth, concurrency int) *ScanScheduler {
	return &ScanScheduler{
		ingestor:    ingestor,
		queue:       make(chan struct{}, queueDepth),
		concurrency: concurrency,
	}
}

// Trigger requests a scan. Returns false when the queue is full, which is
// acceptable: the provider retries its notification, and a queued scan
// already covers any changes this delivery announced.
func (s *ScanScheduler) Trigger() bool {
	select {
	case s.queue <- struct{}{}:
		return true
	default:
		log.Warn("Scan queue full, dropping notification")
		return false
	}
}

// Run drains the queue until ctx is canceled. Call from a dedicated
// goroutine at startup.
func (s *ScanScheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue:
			if err := s.scan(ctx); err != nil && ctx.Err() == nil {
				log.Error("Scan failed", "error", err)
			}
		}
	}
}

// scan lists every file and ingests them with bounded concurrency. Per-file
// failures are already isolated inside IngestFile; only listing errors
// propagate.
func (s *ScanScheduler) scan(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	cursor := ""
	for {
		files, next, err := s.ingestor.files.ListPage(gctx, cursor)
		if err != nil {
			// Workers already started keep running; wait for them.
			_ = g.Wait()
			return err
		}
		for _, f := range files {
			file := f
			g.Go(func() error {
				if err := s.ingestor.IngestFile(gctx, file); err != nil {
					log.Error("Ingest failed", "file", file.Path, "error", err)
				}
				return nil
			})
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return g.Wait()
}
