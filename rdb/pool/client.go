package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"

	"github.com/hatlonely/pgmodel/rdb"
)

// Client 从池中独占的连接，用于事务
type Client struct {
	conn *sql.Conn
	once sync.Once
}

func (c *Client) Query(ctx context.Context, query string, args ...any) ([]rdb.Row, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (c *Client) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Release 归还连接，重复调用无效
func (c *Client) Release() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Discard 丢弃事务状态未知的连接，不再放回池中
func (c *Client) Discard() {
	c.once.Do(func() {
		_ = c.conn.Raw(func(any) error {
			return driver.ErrBadConn
		})
		_ = c.conn.Close()
	})
}

func scanRows(rows *sql.Rows) ([]rdb.Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	binary := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			name := strings.ToUpper(t.DatabaseTypeName())
			binary[i] = name == "BYTEA" || name == "BLOB"
		}
	}

	result := make([]rdb.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(rdb.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok && !binary[i] {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
