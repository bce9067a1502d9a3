package pool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hatlonely/pgmodel/cfg"
	"github.com/hatlonely/pgmodel/log"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
)

// Options 连接池配置，DSN 非空时忽略 host/port 等连接参数
type Options struct {
	// pgx 或 postgres(lib/pq)
	Driver         string        `cfg:"driver" def:"pgx" validate:"oneof=pgx postgres"`
	DSN            string        `cfg:"dsn"`
	Host           string        `cfg:"host" def:"localhost"`
	Port           int           `cfg:"port" def:"5432" validate:"min=1,max=65535"`
	Username       string        `cfg:"username" def:"postgres"`
	Password       string        `cfg:"password"`
	Database       string        `cfg:"database" def:"postgres"`
	MaxConns       int           `cfg:"maxConns" def:"20" validate:"min=1"`
	ConnectTimeout time.Duration `cfg:"connectTimeout"`
	IdleTimeout    time.Duration `cfg:"idleTimeout" def:"10s"`
	SSL            bool          `cfg:"ssl"`
	EnableMetrics  bool          `cfg:"enableMetrics"`
	MetricsName    string        `cfg:"metricsName" def:"pgmodel"`
}

type Option func(*Pool)

func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRegisterer 指定 prometheus 注册器，默认 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) Option {
	return func(p *Pool) {
		p.registerer = r
	}
}

// WithConnectTimeout 限制 Acquire 等待连接的时间，0 表示不限制
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.connectTimeout = d
	}
}

// Pool database/sql 连接池的薄封装，结果统一扫描为 rdb.Row
type Pool struct {
	db             *sql.DB
	logger         logger.Logger
	registerer     prometheus.Registerer
	collector      prometheus.Collector
	connectTimeout time.Duration
}

func NewPoolWithOptions(options *Options, opts ...Option) (*Pool, error) {
	if options == nil {
		options = &Options{}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set pool defaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.Wrap(err, "invalid pool options")
	}

	db, err := sql.Open(options.Driver, BuildDSN(options))
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open %s failed", options.Driver)
	}
	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxConns)
	db.SetConnMaxIdleTime(options.IdleTimeout)

	p := newPool(db, append([]Option{WithConnectTimeout(options.ConnectTimeout)}, opts...)...)

	ctx := context.Background()
	if p.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.connectTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s:%d/%s failed", options.Host, options.Port, options.Database)
	}

	if options.EnableMetrics {
		if err := p.registerStats(options.MetricsName); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	p.logger.Info("pool connected", "driver", options.Driver, "host", options.Host, "port", options.Port, "database", options.Database)
	return p, nil
}

// NewPoolWithDB 包装已有的 *sql.DB
func NewPoolWithDB(db *sql.DB, opts ...Option) *Pool {
	return newPool(db, opts...)
}

func newPool(db *sql.DB, opts ...Option) *Pool {
	p := &Pool{db: db, logger: log.Default(), registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) registerStats(name string) error {
	c := collectors.NewDBStatsCollector(p.db, name)
	if err := p.registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return errors.Wrap(err, "register db stats collector failed")
		}
		p.logger.Warn("db stats collector already registered", "name", name)
		return nil
	}
	p.collector = c
	return nil
}

// BuildDSN 生成 key=value 形式的连接串，pgx 与 lib/pq 通用
func BuildDSN(options *Options) string {
	if options.DSN != "" {
		return options.DSN
	}

	sslmode := "disable"
	if options.SSL {
		sslmode = "require"
	}
	parts := []string{
		"host=" + dsnValue(options.Host),
		fmt.Sprintf("port=%d", options.Port),
		"dbname=" + dsnValue(options.Database),
		"sslmode=" + sslmode,
	}
	if options.Username != "" {
		parts = append(parts, "user="+dsnValue(options.Username))
	}
	if options.Password != "" {
		parts = append(parts, "password="+dsnValue(options.Password))
	}
	if options.ConnectTimeout > 0 {
		secs := int(options.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	return strings.Join(parts, " ")
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + dsnEscaper.Replace(v) + "'"
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

// Query 在池上执行查询
func (p *Pool) Query(ctx context.Context, query string, args ...any) ([]rdb.Row, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Exec 在池上执行语句，返回影响行数
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Acquire 独占一个连接，调用方负责 Release 或 Discard
func (p *Pool) Acquire(ctx context.Context) (*Client, error) {
	if p.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.connectTimeout)
		defer cancel()
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection failed")
	}
	return &Client{conn: conn}, nil
}

func (p *Pool) Close() error {
	if p.collector != nil {
		p.registerer.Unregister(p.collector)
	}
	return p.db.Close()
}
