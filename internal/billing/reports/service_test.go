package reports

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

type mockRepo struct {
	outstanding      []OutstandingInvoice
	counts           StatusCounts
	outstandingCalls int
	countCalls       int
}

func (m *mockRepo) ListOutstanding(ctx context.Context) ([]OutstandingInvoice, error) {
	m.outstandingCalls++
	return m.outstanding, nil
}

func (m *mockRepo) CountByStatus(ctx context.Context, now time.Time) (StatusCounts, error) {
	m.countCalls++
	return m.counts, nil
}

func newTestService(t *testing.T, repo Repository) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func due(t time.Time) *time.Time { return &t }

func TestDashboardBucketsByDaysPastDue(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		outstanding: []OutstandingInvoice{
			{ID: 1, ClientID: 1, ClientName: "Anders", Outstanding: money.FromParts(500, 0), DueDate: due(asOf.AddDate(0, 0, 10))},
			{ID: 2, ClientID: 1, ClientName: "Anders", Outstanding: money.FromParts(200, 0), DueDate: due(asOf.AddDate(0, 0, -5))},
			{ID: 3, ClientID: 2, ClientName: "Brook", Outstanding: money.FromParts(300, 50), DueDate: due(asOf.AddDate(0, 0, -45))},
			{ID: 4, ClientID: 3, ClientName: "Chen", Outstanding: money.FromParts(1000, 0), DueDate: due(asOf.AddDate(0, 0, -120))},
			{ID: 5, ClientID: 3, ClientName: "Chen", Outstanding: money.FromParts(75, 25)},
		},
		counts: StatusCounts{Draft: 2, Sent: 5, Overdue: 3, Paid: 10, Void: 1},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	dash, err := svc.Dashboard(context.Background(), asOf)
	require.NoError(t, err)

	require.Equal(t, money.FromParts(575, 25), dash.Aging.Current)
	require.Equal(t, money.FromParts(200, 0), dash.Aging.Days30)
	require.Equal(t, money.FromParts(300, 50), dash.Aging.Days60)
	require.Equal(t, money.Cents(0), dash.Aging.Days90)
	require.Equal(t, money.FromParts(1000, 0), dash.Aging.Days90Plus)
	require.Equal(t, money.FromParts(2075, 75), dash.TotalOutstanding)
	require.Equal(t, "2,075.75", dash.OutstandingPrint)
	require.Equal(t, 3, dash.Statuses.Overdue)
	require.Len(t, dash.Outstanding, 5)
}

func TestDashboardCachesUntilInvalidated(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{counts: StatusCounts{Sent: 1}}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	_, err := svc.Dashboard(ctx, asOf)
	require.NoError(t, err)
	_, err = svc.Dashboard(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, repo.countCalls)
	require.Equal(t, 1, repo.outstandingCalls)

	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.Dashboard(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 2, repo.countCalls)
}

func TestAgingWithoutCache(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		outstanding: []OutstandingInvoice{
			{ID: 1, Outstanding: money.FromParts(100, 0), DueDate: due(asOf.AddDate(0, 0, -75))},
		},
	}
	svc := NewService(repo, NewCache(nil, 0))

	bucket, err := svc.Aging(context.Background(), asOf)
	require.NoError(t, err)
	require.Equal(t, money.FromParts(100, 0), bucket.Days90)
	require.Equal(t, money.FromParts(100, 0), bucket.Total())
}
