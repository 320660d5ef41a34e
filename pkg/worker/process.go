package worker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/reconcile"
)

// ProcessSynchronizationJob runs one queued reconciliation. The resulting run
// log id is stored on the job so operators can jump from a job to its run
// summary.
func (w *Worker) ProcessSynchronizationJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	data, ok := job.DataParsed.(*models.JobSynchronizationData)
	if !ok {
		return errors.New("job data is not synchronization data")
	}

	log = log.Data(logger.Data{"synchronization_id": data.SynchronizationID})
	log.Info("processing synchronization job")

	runLog, err := w.reconcileService.ReconcileAll(ctx, data.SynchronizationID, reconcile.Options{
		Force: data.Force,
		Test:  data.Test,
	})
	if runLog != nil {
		job.SynchronizationLogID = &runLog.ID
	}
	if err != nil {
		return errors.WithStack(err)
	}

	log.Info("finished synchronization job", logger.Data{
		"created": runLog.ResultParsed.Created,
		"updated": runLog.ResultParsed.Updated,
		"deleted": runLog.ResultParsed.Deleted,
		"skipped": runLog.ResultParsed.Skipped,
		"failed":  runLog.ResultParsed.Failed,
	})

	return nil
}
