package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Susanoo/app/dto"
	memtest "github.com/amirphl/Susanoo/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSuppressionFlow() (SuppressionFlow, *memtest.MemorySuppressionRepo) {
	repo := memtest.NewMemorySuppressionRepo()
	return NewSuppressionFlow(repo, memtest.NewMemoryAuditLogRepo()), repo
}

func TestAddSuppressionNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	flow, repo := newSuppressionFlow()

	resp, err := flow.AddSuppression(ctx, &dto.AddSuppressionRequest{
		Email:  "  Mixed.Case@Example.COM ",
		Reason: "requested by recipient",
	}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Added)

	exists, err := repo.Exists(ctx, "mixed.case@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddSuppressionDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	flow, repo := newSuppressionFlow()

	first, err := flow.AddSuppression(ctx, &dto.AddSuppressionRequest{Email: "dup@example.com"}, nil)
	require.NoError(t, err)
	assert.True(t, first.Added)

	second, err := flow.AddSuppression(ctx, &dto.AddSuppressionRequest{Email: "DUP@example.com"}, nil)
	require.NoError(t, err)
	assert.False(t, second.Added)

	size, err := repo.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestAddSuppressionRequiresEmail(t *testing.T) {
	flow, _ := newSuppressionFlow()
	_, err := flow.AddSuppression(context.Background(), &dto.AddSuppressionRequest{Email: "   "}, nil)
	assert.ErrorIs(t, err, ErrSuppressionEmailRequired)
}

func TestListSuppressionsPages(t *testing.T) {
	ctx := context.Background()
	flow, _ := newSuppressionFlow()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := flow.AddSuppression(ctx, &dto.AddSuppressionRequest{Email: email}, nil)
		require.NoError(t, err)
	}

	page, err := flow.ListSuppressions(ctx, &dto.ListSuppressionsRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, "manual", page.Entries[0].Source)
}
