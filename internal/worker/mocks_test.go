package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"smartdoc/internal/indexing"
)

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexNow(ctx context.Context, docID string) (indexing.Result, error) {
	args := m.Called(ctx, docID)
	return args.Get(0).(indexing.Result), args.Error(1)
}

type MockChecker struct{ mock.Mock }

func (m *MockChecker) Has(ctx context.Context, docID string) bool {
	args := m.Called(ctx, docID)
	return args.Bool(0)
}
