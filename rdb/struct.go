package rdb

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TableFromStruct 从结构体 tag 构建表定义
// 字段 tag 格式：`rdb:"column,type=varchar,size=64,notnull,pk,unique,default=now"`，`rdb:"-"` 跳过
// 表名取任意字段上的 `table:"name"`，否则为结构体名的小写
func TableFromStruct(v any, index int) (*Table, error) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrInvalidArgument, "expected struct, got %T", v)
	}

	table := &Table{Name: strings.ToLower(rt.Name()), Index: index}
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if name := sf.Tag.Get("table"); name != "" {
			table.Name = name
		}
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		field, pk, unique, err := parseFieldTag(sf, tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", sf.Name)
		}
		table.Fields = append(table.Fields, field)
		if pk {
			table.PrimaryKeys = append(table.PrimaryKeys, field.Name)
		}
		if unique {
			table.Unique = append(table.Unique, field.Name)
		}
	}

	if table.Name == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "anonymous struct needs a table tag")
	}
	if len(table.Fields) == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "table %s has no fields", table.Name)
	}
	return table, nil
}

func parseFieldTag(sf reflect.StructField, tag string) (Field, bool, bool, error) {
	field := Field{Name: strings.ToLower(sf.Name), Type: inferDataType(sf.Type)}
	var pk, unique bool

	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		field.Name = strings.TrimSpace(parts[0])
	}
	if !strings.Contains(parts[0], "=") {
		parts = parts[1:]
	}

	var def *string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		key, value, hasValue := strings.Cut(part, "=")
		switch {
		case part == "":
		case hasValue && key == "type":
			t, err := ParseDataType(value)
			if err != nil {
				return field, false, false, err
			}
			field.Type = t
		case hasValue && key == "size":
			n, err := strconv.Atoi(value)
			if err != nil {
				return field, false, false, errors.Wrapf(ErrInvalidArgument, "invalid size %q", value)
			}
			field.Length = n
		case hasValue && key == "default":
			def = &value
		case part == "notnull" || part == "required":
			field.NotNull = true
		case part == "pk" || part == "primary":
			pk = true
		case part == "unique":
			unique = true
		default:
			return field, false, false, errors.Wrapf(ErrInvalidArgument, "unknown tag option %q", part)
		}
	}

	if def != nil {
		field.Default = parseDefault(*def, field.Type)
	}
	return field, pk, unique, nil
}

func inferDataType(t reflect.Type) DataType {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == reflect.TypeOf(time.Time{}) {
		return TIMESTAMPTZ
	}

	switch t.Kind() {
	case reflect.String:
		return VARCHAR
	case reflect.Bool:
		return BOOLEAN
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return SMALLINT
	case reflect.Int32, reflect.Uint16:
		return INTEGER
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return BIGINT
	case reflect.Float32:
		return REAL
	case reflect.Float64:
		return DOUBLEPRECISION
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return BYTEA
		}
	}
	return JSONB
}

func parseDefault(value string, t DataType) any {
	switch t {
	case BOOLEAN:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case SMALLINT, INTEGER, BIGINT:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	case REAL, DOUBLEPRECISION, NUMERIC:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}
