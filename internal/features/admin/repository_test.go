package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mlm-platform/internal/db/postgres/pgtest"
)

func TestRepositoryRecentFailures(t *testing.T) {
	pool := pgtest.NewPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.LogAttempt(ctx, "10.0.0.1", false))
	require.NoError(t, repo.LogAttempt(ctx, "10.0.0.1", false))
	require.NoError(t, repo.LogAttempt(ctx, "10.0.0.1", true))
	require.NoError(t, repo.LogAttempt(ctx, "10.0.0.2", false))

	hourAgo := time.Now().Add(-time.Hour)
	n, err := repo.RecentFailures(ctx, "10.0.0.1", hourAgo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.RecentFailures(ctx, "10.0.0.1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
