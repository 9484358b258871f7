package sequence

import (
	"context"
	"fmt"
)

// Allocator issues formatted document numbers from a named counter.
type Allocator interface {
	Next(ctx context.Context, name string) (Allocation, error)
}

// Well-known sequence names.
const (
	NameEstimate = "estimate"
	NameInvoice  = "invoice"
)

// Service formats allocations into document numbers.
type Service struct {
	repo Allocator
}

// NewService builds a Service instance.
func NewService(repo Allocator) *Service {
	return &Service{repo: repo}
}

// Next allocates and formats the next number for the named sequence.
func (s *Service) Next(ctx context.Context, name string) (string, error) {
	alloc, err := s.repo.Next(ctx, name)
	if err != nil {
		return "", fmt.Errorf("allocate %s number: %w", name, err)
	}
	return alloc.Format(), nil
}
