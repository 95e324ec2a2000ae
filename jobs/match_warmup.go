package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/buildledger/buildledger/internal/jobs"
	"github.com/buildledger/buildledger/internal/ledger/purchaseorders"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MatchWarmupJob pre-populates the PO match cache for an owner's projects
// so the first bill review of the day hits warm entries.
type MatchWarmupJob struct {
	Matches *purchaseorders.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMatchWarmupJob wires dependencies for the warmup handler.
func NewMatchWarmupJob(matches *purchaseorders.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *MatchWarmupJob {
	return &MatchWarmupJob{Matches: matches, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks. Projects warm concurrently, capped so one
// owner cannot saturate the database pool.
func (j *MatchWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Matches == nil {
		return errors.New("match warmup: handler not configured")
	}
	var payload MatchWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OwnerID == 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskMatchWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("owner_id", payload.OwnerID))
	start := time.Now()

	projectIDs, err := j.Matches.ProjectIDs(ctx, payload.OwnerID)
	if err != nil {
		resultErr = err
		logger.Error("load warmup projects", slog.Any("error", err))
		return resultErr
	}
	if len(projectIDs) == 0 {
		logger.Info("no projects discovered for warmup")
		return resultErr
	}

	var warmed int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	counts := make([]int, len(projectIDs))
	for idx, projectID := range projectIDs {
		idx, projectID := idx, projectID
		group.Go(func() error {
			n, err := j.Matches.WarmProject(groupCtx, payload.OwnerID, projectID)
			counts[idx] = n
			return err
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		logger.Error("warm project", slog.Any("error", err))
		return resultErr
	}
	for _, n := range counts {
		warmed += int64(n)
	}

	logger.Info("completed match warmup",
		slog.Int("projects", len(projectIDs)),
		slog.Int64("bills", warmed),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *MatchWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMatchWarmup))
	}
	return slog.Default().With(slog.String("job", TaskMatchWarmup))
}

func (j *MatchWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
