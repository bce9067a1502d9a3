package dataaccess

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hatlonely/pgmodel/log"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/pool"
)

// RollbackError ROLLBACK 本身失败，连接已被丢弃，调用方必须处理
type RollbackError struct {
	// 触发回滚的原始错误，可能为 nil
	Cause error
	Err   error
}

func (e *RollbackError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("rollback failed: %v", e.Err)
	}
	return fmt.Sprintf("rollback failed: %v, cause: %v", e.Err, e.Cause)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

type options struct {
	logger      logger.Logger
	metricsName string
	tracingName string
	registerer  prometheus.Registerer
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics 以 name 为前缀记录 prometheus 指标
func WithMetrics(name string) Option {
	return func(o *options) {
		o.metricsName = name
	}
}

// WithRegisterer 指定指标注册器，默认 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithTracing 为每个操作创建 otel span
func WithTracing(name string) Option {
	return func(o *options) {
		o.tracingName = name
	}
}

// DataAccess 在连接池上执行语句，并管理一个独占连接上的事务
// 事务状态：Idle -> BeginTransaction -> InTransaction -> Commit/Rollback -> Idle
// 一个实例只服务一个逻辑操作，并发的操作各自 Fork
type DataAccess struct {
	pool     *pool.Pool
	logger   logger.Logger
	observer *observer

	mu     sync.Mutex
	client *pool.Client
}

func New(p *pool.Pool, opts ...Option) (*DataAccess, error) {
	if p == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "pool is nil")
	}

	o := &options{logger: log.Default(), registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(o)
	}

	obs := &observer{name: o.metricsName}
	if o.metricsName != "" {
		m, err := newMetrics(o.metricsName, o.registerer)
		if err != nil {
			return nil, err
		}
		obs.metrics = m
	}
	if o.tracingName != "" {
		obs.name = o.tracingName
		obs.tracer = newTracer(o.tracingName)
	}

	return &DataAccess{pool: p, logger: o.logger, observer: obs}, nil
}

// Fork 返回共享连接池、日志和观测配置的空闲实例
func (da *DataAccess) Fork() *DataAccess {
	return &DataAccess{pool: da.pool, logger: da.logger, observer: da.observer}
}

func (da *DataAccess) Logger() logger.Logger {
	return da.logger
}

func (da *DataAccess) InTransaction() bool {
	da.mu.Lock()
	defer da.mu.Unlock()
	return da.client != nil
}

// BeginTransaction 没有连接时从池中获取，已持有连接时在同一连接上再次 BEGIN
func (da *DataAccess) BeginTransaction(ctx context.Context) error {
	return da.observer.observe(ctx, "begin", func(ctx context.Context) error {
		da.mu.Lock()
		defer da.mu.Unlock()

		reused := da.client != nil
		if !reused {
			client, err := da.pool.Acquire(ctx)
			if err != nil {
				da.logger.ErrorContext(ctx, "acquire client failed", "error", err.Error())
				return err
			}
			da.client = client
		}

		if _, err := da.client.Exec(ctx, "BEGIN"); err != nil {
			da.logger.ErrorContext(ctx, "begin transaction failed", "error", err.Error())
			// 已在事务中的连接状态未知，不能放回池中
			if reused {
				da.client.Discard()
			} else {
				_ = da.client.Release()
			}
			da.client = nil
			return errors.Wrap(err, "begin transaction failed")
		}
		return nil
	})
}

// CommitTransaction 提交并归还连接，提交失败时回滚
func (da *DataAccess) CommitTransaction(ctx context.Context) error {
	return da.observer.observe(ctx, "commit", func(ctx context.Context) error {
		da.mu.Lock()
		defer da.mu.Unlock()

		if da.client == nil {
			da.logger.ErrorContext(ctx, "no client connected", "operation", "commit")
			return rdb.ErrNoClient
		}

		if _, err := da.client.Exec(ctx, "COMMIT"); err != nil {
			da.logger.ErrorContext(ctx, "commit transaction failed", "error", err.Error())
			return da.rollbackLocked(ctx, errors.Wrap(err, "commit transaction failed"))
		}

		if err := da.client.Release(); err != nil {
			da.logger.WarnContext(ctx, "release client failed", "error", err.Error())
		}
		da.client = nil
		return nil
	})
}

// RollbackTransaction 回滚并归还连接；ROLLBACK 失败时连接被丢弃并返回 *RollbackError
func (da *DataAccess) RollbackTransaction(ctx context.Context, cause error) error {
	return da.observer.observe(ctx, "rollback", func(ctx context.Context) error {
		da.mu.Lock()
		defer da.mu.Unlock()

		if da.client == nil {
			da.logger.ErrorContext(ctx, "no client connected", "operation", "rollback")
			return rdb.ErrNoClient
		}
		var rbErr *RollbackError
		if errors.As(da.rollbackLocked(ctx, cause), &rbErr) {
			return rbErr
		}
		return nil
	})
}

// rollbackLocked 回滚成功时返回 cause，失败时返回 *RollbackError
func (da *DataAccess) rollbackLocked(ctx context.Context, cause error) error {
	client := da.client
	da.client = nil

	if _, err := client.Exec(ctx, "ROLLBACK"); err != nil {
		da.logger.ErrorContext(ctx, "rollback transaction failed", "error", err.Error())
		client.Discard()
		return &RollbackError{Cause: cause, Err: err}
	}
	if err := client.Release(); err != nil {
		da.logger.WarnContext(ctx, "release client failed", "error", err.Error())
	}
	return cause
}

// ExecuteTransactionWithSQL 在事务连接上执行，失败时回滚并返回空结果和错误
func (da *DataAccess) ExecuteTransactionWithSQL(ctx context.Context, stmt *rdb.Statement) ([]rdb.Row, error) {
	rows := []rdb.Row{}
	err := da.observer.observe(ctx, "executeTransaction", func(ctx context.Context) error {
		da.mu.Lock()
		defer da.mu.Unlock()

		if da.client == nil {
			da.logger.ErrorContext(ctx, "no client connected", "operation", "executeTransaction")
			return rdb.ErrNoClient
		}

		result, err := da.queryLocked(ctx, stmt)
		if err != nil {
			return da.rollbackLocked(ctx, err)
		}
		rows = result
		return nil
	})
	if err != nil {
		return []rdb.Row{}, err
	}
	return rows, nil
}

// ExecuteTransactionWithSQLs 在同一事务连接上依次执行，结果以 alias 或下标为 key；任一失败则整体回滚
func (da *DataAccess) ExecuteTransactionWithSQLs(ctx context.Context, stmts []*rdb.Statement) (map[string][]rdb.Row, error) {
	results := map[string][]rdb.Row{}
	err := da.observer.observe(ctx, "executeTransactionBatch", func(ctx context.Context) error {
		da.mu.Lock()
		defer da.mu.Unlock()

		if da.client == nil {
			da.logger.ErrorContext(ctx, "no client connected", "operation", "executeTransactionBatch")
			return rdb.ErrNoClient
		}

		for i, stmt := range stmts {
			rows, err := da.queryLocked(ctx, stmt)
			if err != nil {
				return da.rollbackLocked(ctx, errors.WithMessagef(err, "statement %s", resultKey(stmt, i)))
			}
			results[resultKey(stmt, i)] = rows
		}
		return nil
	})
	if err != nil {
		return map[string][]rdb.Row{}, err
	}
	return results, nil
}

func (da *DataAccess) queryLocked(ctx context.Context, stmt *rdb.Statement) ([]rdb.Row, error) {
	if stmt == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "statement is nil")
	}
	rows, err := da.client.Query(ctx, stmt.SQL, stmt.Replacements...)
	if err != nil {
		da.logger.ErrorContext(ctx, "execute sql failed", "sql", stmt.SQL, "error", err.Error())
		return nil, err
	}
	return rows, nil
}

func resultKey(stmt *rdb.Statement, i int) string {
	if stmt != nil && stmt.Alias != "" {
		return stmt.Alias
	}
	return strconv.Itoa(i)
}

// ExecuteNonQueryWithSQL 在连接池上执行，返回影响行数
func (da *DataAccess) ExecuteNonQueryWithSQL(ctx context.Context, stmt *rdb.Statement) (int64, error) {
	var n int64
	err := da.observer.observe(ctx, "executeNonQuery", func(ctx context.Context) error {
		var err error
		n, err = da.exec(ctx, stmt)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ExecuteNonQueryWithSQLs 并发执行，返回影响行数之和
func (da *DataAccess) ExecuteNonQueryWithSQLs(ctx context.Context, stmts []*rdb.Statement) (int64, error) {
	var total atomic.Int64
	err := da.observer.observe(ctx, "executeNonQueryBatch", func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		for _, stmt := range stmts {
			stmt := stmt
			g.Go(func() error {
				n, err := da.exec(ctx, stmt)
				if err != nil {
					return err
				}
				total.Add(n)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return 0, err
	}
	return total.Load(), nil
}

// ExecuteRowsWithSQL 在连接池上查询
func (da *DataAccess) ExecuteRowsWithSQL(ctx context.Context, stmt *rdb.Statement) ([]rdb.Row, error) {
	var rows []rdb.Row
	err := da.observer.observe(ctx, "executeRows", func(ctx context.Context) error {
		var err error
		rows, err = da.query(ctx, stmt)
		return err
	})
	if err != nil {
		return []rdb.Row{}, err
	}
	return rows, nil
}

// ExecuteRowsWithSQLs 并发查询，结果以 alias 或下标为 key
func (da *DataAccess) ExecuteRowsWithSQLs(ctx context.Context, stmts []*rdb.Statement) (map[string][]rdb.Row, error) {
	results := make(map[string][]rdb.Row, len(stmts))
	err := da.observer.observe(ctx, "executeRowsBatch", func(ctx context.Context) error {
		var mu sync.Mutex
		g, ctx := errgroup.WithContext(ctx)
		for i, stmt := range stmts {
			i, stmt := i, stmt
			g.Go(func() error {
				rows, err := da.query(ctx, stmt)
				if err != nil {
					return err
				}
				mu.Lock()
				results[resultKey(stmt, i)] = rows
				mu.Unlock()
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return map[string][]rdb.Row{}, err
	}
	return results, nil
}

func (da *DataAccess) exec(ctx context.Context, stmt *rdb.Statement) (int64, error) {
	if stmt == nil {
		return 0, errors.Wrap(rdb.ErrInvalidArgument, "statement is nil")
	}
	n, err := da.pool.Exec(ctx, stmt.SQL, stmt.Replacements...)
	if err != nil {
		da.logger.ErrorContext(ctx, "execute sql failed", "sql", stmt.SQL, "error", err.Error())
		return 0, err
	}
	return n, nil
}

func (da *DataAccess) query(ctx context.Context, stmt *rdb.Statement) ([]rdb.Row, error) {
	if stmt == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "statement is nil")
	}
	rows, err := da.pool.Query(ctx, stmt.SQL, stmt.Replacements...)
	if err != nil {
		da.logger.ErrorContext(ctx, "execute sql failed", "sql", stmt.SQL, "error", err.Error())
		return nil, err
	}
	return rows, nil
}

// WithTransaction fn 返回错误或 panic 时回滚，否则提交
// fn 中的 ExecuteTransactionWithSQL(s) 失败时已经回滚，此时直接返回 fn 的错误
func (da *DataAccess) WithTransaction(ctx context.Context, fn func(ctx context.Context, da *DataAccess) error) (err error) {
	if err := da.BeginTransaction(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if da.InTransaction() {
				_ = da.RollbackTransaction(ctx, errors.Errorf("panic: %v", r))
			}
			panic(r)
		}
	}()

	if err := fn(ctx, da); err != nil {
		if !da.InTransaction() {
			return err
		}
		if rerr := da.RollbackTransaction(ctx, err); rerr != nil {
			return rerr
		}
		return err
	}
	return da.CommitTransaction(ctx)
}
