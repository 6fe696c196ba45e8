// Package testutil provides mocks and an in-memory warehouse for tests.
package testutil

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
)

// MockTx is a mock implementation of database.Tx.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ExecuteRaw(ctx context.Context, query string, args ...interface{}) (int64, error) {
	a := m.Called(ctx, query, args)
	return a.Get(0).(int64), a.Error(1)
}

func (m *MockTx) QueryRaw(ctx context.Context, target interface{}, query string, args ...interface{}) (int64, error) {
	a := m.Called(ctx, target, query, args)
	return a.Get(0).(int64), a.Error(1)
}

func (m *MockTx) Savepoint(name string) error {
	return m.Called(name).Error(0)
}

func (m *MockTx) RollbackToSavepoint(name string) error {
	return m.Called(name).Error(0)
}

// MockTxManager is a mock implementation of database.TransactionManager.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (database.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.Tx), args.Error(1)
}

func (m *MockTxManager) Commit(t database.Tx) error {
	return m.Called(t).Error(0)
}

func (m *MockTxManager) Rollback(t database.Tx) error {
	return m.Called(t).Error(0)
}

var _ database.Tx = (*MockTx)(nil)

var _ database.TransactionManager = (*MockTxManager)(nil)
