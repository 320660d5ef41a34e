package worker

import (
	"context"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/config"
	"github.com/syncbridge/syncbridge/pkg/jobs"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/synchronizations"
	"github.com/syncbridge/syncbridge/pkg/synclogs"
	"github.com/uptrace/bun"
)

// Scheduler periodically enqueues runs for synchronizations that are due and
// purges expired logs. Enqueueing is idempotent per tick: a synchronization
// with a pending or in-progress run is never enqueued twice.
type Scheduler struct {
	config *config.Config
	log    logger.Logger

	jobService              *jobs.Service
	synchronizationsService *synchronizations.Service
	logService              *synclogs.Service

	shutdown chan struct{}
	done     chan struct{}
}

func NewScheduler(cfg *config.Config, db *bun.DB) *Scheduler {
	return &Scheduler{
		config: cfg,
		log:    logger.New(),

		jobService:              jobs.NewService(db),
		synchronizationsService: synchronizations.NewService(db),
		logService:              synclogs.NewService(db, cfg.LogRetention, cfg.SnapshotByteCap),

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	timer := time.NewTimer(s.config.SchedulerInterval)

	for {
		select {
		case <-s.shutdown:
			s.done <- struct{}{}
			return
		case <-timer.C:
			s.tick(context.Background())
			timer.Reset(s.config.SchedulerInterval)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.enqueueDueRuns(ctx); err != nil {
		s.log.Err(err).Error("enqueue due runs error")
	}

	deleted, err := s.logService.DeleteExpired(ctx)
	if err != nil {
		s.log.Err(err).Error("delete expired logs error")
	} else if deleted > 0 {
		s.log.Info("purged expired logs", logger.Data{"count": deleted})
	}
}

func (s *Scheduler) enqueueDueRuns(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.ResyncInterval)

	due, err := s.synchronizationsService.ListDueSynchronizations(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, sync := range due {
		active, err := s.jobService.HasActiveSynchronizationJob(ctx, sync.ID)
		if err != nil {
			return err
		}
		if active {
			continue
		}

		job := &models.Job{
			Type:   models.JobTypeSynchronization,
			Status: models.JobStatusPending,
			DataParsed: &models.JobSynchronizationData{
				SynchronizationID: sync.ID,
			},
		}
		if err := s.jobService.CreateJob(ctx, job); err != nil {
			return err
		}

		s.log.Info("enqueued synchronization run", logger.Data{
			"synchronization_id": sync.ID,
			"job_id":             job.ID,
		})
	}

	return nil
}

func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	<-s.done
}
