package reports

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service assembles read-only receivables reports, caching the result
// until the payment ledger or invoice pipeline bumps the cache version.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService builds a Service instance. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Dashboard builds the landing summary for asOf. The status tallies and
// the outstanding list load concurrently; aging derives from the list.
func (s *Service) Dashboard(ctx context.Context, asOf time.Time) (*Dashboard, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	key, err := s.cache.BuildKey(ctx, "reports", "dashboard", asOf.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	var dash Dashboard
	err = s.cache.FetchJSON(ctx, key, &dash, func(ctx context.Context) (interface{}, error) {
		return s.build(ctx, asOf)
	})
	if err != nil {
		return nil, err
	}
	return &dash, nil
}

// Aging returns just the aging buckets for asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	outstanding, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	return bucketize(outstanding, asOf), nil
}

// Invalidate drops all cached reports. Callers invoke it after any write
// that changes a balance or status.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) build(ctx context.Context, asOf time.Time) (*Dashboard, error) {
	var (
		counts      StatusCounts
		outstanding []OutstandingInvoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.repo.CountByStatus(gctx, asOf)
		return err
	})
	g.Go(func() error {
		var err error
		outstanding, err = s.repo.ListOutstanding(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	aging := bucketize(outstanding, asOf)
	total := aging.Total()
	return &Dashboard{
		AsOf:             asOf,
		Statuses:         counts,
		Aging:            aging,
		TotalOutstanding: total,
		OutstandingPrint: total.Display(),
		Outstanding:      outstanding,
	}, nil
}

// bucketize groups outstanding balances by days past due as of asOf.
// Invoices without a due date count as current.
func bucketize(invoices []OutstandingInvoice, asOf time.Time) AgingBucket {
	var bucket AgingBucket
	for _, inv := range invoices {
		if inv.DueDate == nil {
			bucket.Current += inv.Outstanding
			continue
		}
		days := int(asOf.Sub(*inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current += inv.Outstanding
		case days <= 30:
			bucket.Days30 += inv.Outstanding
		case days <= 60:
			bucket.Days60 += inv.Outstanding
		case days <= 90:
			bucket.Days90 += inv.Outstanding
		default:
			bucket.Days90Plus += inv.Outstanding
		}
	}
	return bucket
}
