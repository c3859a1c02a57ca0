package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bobbystable/voicepay-backend/internal/governor"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
)

const defaultGovernorRetention = time.Hour

type GovernorPruneJobParams struct {
	Logger    *logger.Logger
	Governor  *governor.Governor
	Retention time.Duration
}

// NewGovernorPruneJob drops cooldown bookkeeping for conversations that
// have gone quiet.
func NewGovernorPruneJob(params GovernorPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Governor == nil {
		return nil, fmt.Errorf("governor required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultGovernorRetention
	}
	return &governorPruneJob{
		logg:      params.Logger,
		governor:  params.Governor,
		retention: retention,
	}, nil
}

type governorPruneJob struct {
	logg      *logger.Logger
	governor  *governor.Governor
	retention time.Duration
}

func (j *governorPruneJob) Name() string { return "governor-prune" }

func (j *governorPruneJob) Run(ctx context.Context) error {
	pruned := j.governor.Prune(j.retention)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"conversations_pruned": pruned,
		"conversations_live":   j.governor.Len(),
	})
	j.logg.Info(logCtx, "governor prune complete")
	return nil
}
