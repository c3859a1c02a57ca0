package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/metrics"
)

type SessionSweepJobParams struct {
	Logger   *logger.Logger
	Sessions *sessions.Store
	Metrics  *metrics.PaymentMetrics
}

// NewSessionSweepJob evicts payment sessions abandoned mid-call.
func NewSessionSweepJob(params SessionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	return &sessionSweepJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type sessionSweepJob struct {
	logg     *logger.Logger
	sessions *sessions.Store
	metrics  *metrics.PaymentMetrics
	now      func() time.Time
}

func (j *sessionSweepJob) Name() string { return "payment-session-sweep" }

func (j *sessionSweepJob) Run(ctx context.Context) error {
	swept := j.sessions.SweepExpired(j.now())
	if j.metrics != nil {
		j.metrics.AddSessionsSwept(swept)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sessions_swept": swept,
		"sessions_live":  j.sessions.Len(),
	})
	j.logg.Info(logCtx, "payment session sweep complete")
	return nil
}
