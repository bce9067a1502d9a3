package rdb

import (
	"github.com/pkg/errors"
)

var (
	ErrTableNotFound      = errors.New("table not found")
	ErrFieldValueMismatch = errors.New("fields and values mismatch")
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNoClient           = errors.New("no client connected")
	ErrNoRows             = errors.New("no rows returned")
	ErrNoTables           = errors.New("no tables")
	ErrJoinArity          = errors.New("child table has fewer primary keys than its parent")
)

// DataType 列类型，值即 DDL 中的类型名
type DataType string

const (
	CHAR            DataType = "CHAR"
	VARCHAR         DataType = "VARCHAR"
	TEXT            DataType = "TEXT"
	SMALLINT        DataType = "SMALLINT"
	INTEGER         DataType = "INTEGER"
	BIGINT          DataType = "BIGINT"
	SERIAL          DataType = "SERIAL"
	BIGSERIAL       DataType = "BIGSERIAL"
	NUMERIC         DataType = "NUMERIC"
	REAL            DataType = "REAL"
	DOUBLEPRECISION DataType = "DOUBLE PRECISION"
	BOOLEAN         DataType = "BOOLEAN"
	DATE            DataType = "DATE"
	TIME            DataType = "TIME"
	TIMESTAMP       DataType = "TIMESTAMP"
	TIMESTAMPTZ     DataType = "TIMESTAMPTZ"
	JSON            DataType = "JSON"
	JSONB           DataType = "JSONB"
	UUID            DataType = "UUID"
	BYTEA           DataType = "BYTEA"
)

var dataTypes = map[DataType]struct{}{
	CHAR: {}, VARCHAR: {}, TEXT: {}, SMALLINT: {}, INTEGER: {}, BIGINT: {},
	SERIAL: {}, BIGSERIAL: {}, NUMERIC: {}, REAL: {}, DOUBLEPRECISION: {},
	BOOLEAN: {}, DATE: {}, TIME: {}, TIMESTAMP: {}, TIMESTAMPTZ: {},
	JSON: {}, JSONB: {}, UUID: {}, BYTEA: {},
}

// ParseDataType 大小写不敏感，同时接受 DOUBLE_PRECISION
func ParseDataType(s string) (DataType, error) {
	t := DataType(normalizeTypeName(s))
	if _, ok := dataTypes[t]; !ok {
		return "", errors.Wrapf(ErrInvalidArgument, "unknown data type %q", s)
	}
	return t, nil
}

// HasLength CHAR 和 VARCHAR 需要长度
func (t DataType) HasLength() bool {
	return t == CHAR || t == VARCHAR
}

// Statement 带位置参数的 SQL 语句，Alias 用于批量执行时作为结果的 key
type Statement struct {
	SQL          string `json:"sql"`
	Replacements []any  `json:"replacements,omitempty"`
	Alias        string `json:"alias,omitempty"`
}

// Row 一行结果，key 为列名
type Row = map[string]any
