package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NihalShah4/ai-news-research-recommender/internal/config"
	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
)

type stubPruner struct {
	maxAge    time.Duration
	batchSize int
	deleted   int64
	err       error
}

func (s *stubPruner) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	s.maxAge = maxAge
	s.batchSize = batchSize
	return s.deleted, s.err
}

func TestRunOncePassesRetentionWindow(t *testing.T) {
	log := logger.Discard()
	cfg := &config.Retention{MaxAge: 72 * time.Hour, BatchSize: 250}
	p := &stubPruner{deleted: 7}

	require.EqualValues(t, 7, runOnce(context.Background(), log, p, cfg))
	require.Equal(t, 72*time.Hour, p.maxAge)
	require.Equal(t, 250, p.batchSize)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	log := logger.Discard()
	cfg := &config.Retention{MaxAge: time.Hour, BatchSize: 10}

	require.Zero(t, runOnce(context.Background(), log, &stubPruner{deleted: 3, err: errors.New("es down")}, cfg))
}
