package app

import (
	"SupplyScraper/internal/checkpoint"
	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/logger"
	"SupplyScraper/internal/models"

	"go.uber.org/zap"
)

// runState tracks the checkpoint of the current scrape. Without a checkpoint
// database it only carries a run id for log correlation.
type runState struct {
	store    *checkpoint.Store
	id       string
	previous map[int]models.ScrapeResult
}

func (a *App) startRun(dbPath, outputPath string, inputCount int, resume bool) (*runState, error) {
	if dbPath == "" {
		if resume {
			return nil, errors.WithHint(errors.New("resume needs a checkpoint database"), "Set output.checkpoint_db in the config.")
		}
		return &runState{id: "-"}, nil
	}

	store, err := checkpoint.InitDB(dbPath)
	if err != nil {
		return nil, err
	}
	run := &runState{store: store}

	if resume {
		prev, ok, err := store.LatestUnfinished(outputPath)
		if err != nil {
			store.Close()
			return nil, err
		}
		if ok {
			if err := store.ReopenRun(prev.ID, inputCount); err != nil {
				store.Close()
				return nil, err
			}
			if run.previous, err = store.Results(prev.ID); err != nil {
				store.Close()
				return nil, err
			}
			run.id = prev.ID
			a.Log.Infow("Resuming run",
				logger.FieldRunID, prev.ID,
				"started_at", prev.StartedAt,
				logger.FieldCount, len(run.previous),
			)
			return run, nil
		}
		a.Log.Infow("No unfinished run to resume, starting fresh", logger.FieldFile, outputPath)
	}

	r, err := store.StartRun(outputPath, inputCount)
	if err != nil {
		store.Close()
		return nil, err
	}
	run.id = r.ID
	return run, nil
}

// save checkpoints one result. Failures are logged; the output file remains
// the record of the run.
func (r *runState) save(log *zap.SugaredLogger, index int, result models.ScrapeResult) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveResult(r.id, index, result); err != nil {
		log.Warnw("Failed to checkpoint result", logger.FieldProduct, result.Number, logger.FieldError, err)
	}
}

func (r *runState) finish(log *zap.SugaredLogger, state string) {
	if r.store == nil {
		return
	}
	if err := r.store.FinishRun(r.id, state); err != nil {
		log.Warnw("Failed to record run state", logger.FieldStatus, state, logger.FieldError, err)
	}
}

func (r *runState) close() {
	if r.store != nil {
		r.store.Close()
	}
}
