package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
)

// GormTxAdapter implements database.Tx over a gorm transaction handle.
type GormTxAdapter struct {
	db *gorm.DB
}

var _ database.Tx = (*GormTxAdapter)(nil)

func (t *GormTxAdapter) ExecuteRaw(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return execRaw(t.db.WithContext(ctx), query, args...)
}

func (t *GormTxAdapter) QueryRaw(ctx context.Context, target interface{}, query string, args ...interface{}) (int64, error) {
	return queryRaw(t.db.WithContext(ctx), target, query, args...)
}

func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormTransactionManager implements database.TransactionManager for one connection.
type GormTransactionManager struct {
	conn *GormDBAdapter
}

var _ database.TransactionManager = (*GormTransactionManager)(nil)

// NewTransactionManager returns a manager for conn, which must come from this package.
func NewTransactionManager(conn database.DBConnection) (*GormTransactionManager, error) {
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("transaction manager requires a gorm connection, got %T", conn)
	}
	return &GormTransactionManager{conn: adapter}, nil
}

func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (database.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gormTx := m.conn.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.conn.Name(), gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

func (m *GormTransactionManager) Commit(t database.Tx) error {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTx.db.Commit().Error
}

func (m *GormTransactionManager) Rollback(t database.Tx) error {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTx.db.Rollback().Error
}
