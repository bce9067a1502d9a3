package model

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/builder"
	"github.com/hatlonely/pgmodel/rdb/cache"
	"github.com/hatlonely/pgmodel/rdb/condition"
	"github.com/hatlonely/pgmodel/rdb/dataaccess"
	"github.com/hatlonely/pgmodel/rdb/pool"
)

func testTables() []*rdb.Table {
	return []*rdb.Table{
		{
			Name:  "users",
			Index: 0,
			Fields: []rdb.Field{
				{Name: "id", Type: rdb.BIGINT, NotNull: true},
				{Name: "name", Type: rdb.VARCHAR, Length: 32, NotNull: true},
				{Name: "age", Type: rdb.INTEGER, Default: 0, NotNull: true},
			},
			PrimaryKeys: []string{"id"},
		},
		{
			Name:  "profiles",
			Index: 1,
			Fields: []rdb.Field{
				{Name: "id", Type: rdb.BIGINT},
				{Name: "bio", Type: rdb.TEXT},
			},
			PrimaryKeys: []string{"id"},
		},
	}
}

type recordHooks struct {
	calls []string
	err   error
}

func (h *recordHooks) record(name string) error {
	h.calls = append(h.calls, name)
	return h.err
}

func (h *recordHooks) BeforeAddNew(ctx context.Context, rows []TableRow) error {
	return h.record("BeforeAddNew")
}
func (h *recordHooks) AfterAddNew(ctx context.Context, result *AddNewResult) error {
	return h.record("AfterAddNew")
}
func (h *recordHooks) BeforeDelete(ctx context.Context, req *DeleteRequest) error {
	return h.record("BeforeDelete")
}
func (h *recordHooks) AfterDelete(ctx context.Context, row rdb.Row) error {
	return h.record("AfterDelete")
}
func (h *recordHooks) BeforeUpdate(ctx context.Context, req *UpdateRequest) error {
	return h.record("BeforeUpdate")
}
func (h *recordHooks) AfterUpdate(ctx context.Context, rows []rdb.Row) error {
	return h.record("AfterUpdate")
}
func (h *recordHooks) BeforeLoad(ctx context.Context, req *LoadRequest) error {
	return h.record("BeforeLoad")
}
func (h *recordHooks) AfterLoad(ctx context.Context, rows []rdb.Row) error {
	return h.record("AfterLoad")
}

// rewriteHooks 在 BeforeAddNew 中把 users.name 改为大写
type rewriteHooks struct {
	*recordHooks
}

func (h *rewriteHooks) BeforeAddNew(ctx context.Context, rows []TableRow) error {
	for _, tr := range rows {
		if name, ok := tr.Row["name"].(string); ok && tr.Index == 0 {
			tr.Row["name"] = strings.ToUpper(name)
		}
	}
	return h.recordHooks.BeforeAddNew(ctx, rows)
}

type fixedIntGenerator int64

func (g fixedIntGenerator) Generate() int64 { return int64(g) }

type fixedStrGenerator string

func (g fixedStrGenerator) Generate() string { return string(g) }

func newMockModel(opts ...Option) (*Model, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)

	da, err := dataaccess.New(pool.NewPoolWithDB(db), dataaccess.WithLogger(logger.Nop{}))
	if err != nil {
		panic(err)
	}
	m, err := NewModel(context.Background(), da, testTables(), append([]Option{WithLogger(logger.Nop{})}, opts...)...)
	if err != nil {
		panic(err)
	}
	return m, mock, func() { _ = db.Close() }
}

func intPtr(i int) *int {
	return &i
}

var errBoom = errors.New("boom")

func TestNewModel(t *testing.T) {
	Convey("创建 Model", t, func() {
		db, _, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()
		da, err := dataaccess.New(pool.NewPoolWithDB(db), dataaccess.WithLogger(logger.Nop{}))
		So(err, ShouldBeNil)
		ctx := context.Background()

		_, err = NewModel(ctx, nil, testTables())
		So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)

		_, err = NewModel(ctx, da, nil)
		So(errors.Is(err, rdb.ErrNoTables), ShouldBeTrue)

		_, err = NewModel(ctx, da, []*rdb.Table{})
		So(errors.Is(err, rdb.ErrNoTables), ShouldBeTrue)

		_, err = NewModel(ctx, da, testTables(), WithIntGenerator(0, "missing", fixedIntGenerator(1)))
		So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)

		_, err = NewModel(ctx, da, testTables(), WithStrGenerator(9, "id", fixedStrGenerator("x")))
		So(errors.Is(err, rdb.ErrTableNotFound), ShouldBeTrue)

		m, err := NewModel(ctx, da, testTables())
		So(err, ShouldBeNil)
		So(m.Tables(), ShouldHaveLength, 2)
		So(m.Builder(), ShouldNotBeNil)
	})

	Convey("自动建表", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		mock.MatchExpectationsInOrder(false)
		da, err := dataaccess.New(pool.NewPoolWithDB(db), dataaccess.WithLogger(logger.Nop{}))
		So(err, ShouldBeNil)

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users ( "id" BIGINT NOT NULL, "name" VARCHAR(32) NOT NULL, "age" INTEGER DEFAULT 0 NOT NULL, PRIMARY KEY (id) );`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS profiles ( "id" BIGINT, "bio" TEXT, PRIMARY KEY (id) );`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err = NewModel(context.Background(), da, testTables(), WithAutoCreate(), WithLogger(logger.Nop{}))
		So(err, ShouldBeNil)
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestVerifyTableData(t *testing.T) {
	Convey("校验必填字段", t, func() {
		m, _, closeFn := newMockModel()
		defer closeFn()

		So(m.VerifyTableData(0, rdb.Row{"id": 1, "name": "bob"}, true), ShouldBeNil)

		Convey("零值和空字符串是合法值", func() {
			So(m.VerifyTableData(0, rdb.Row{"id": 0, "name": ""}, true), ShouldBeNil)
		})

		Convey("有默认值的 NOT NULL 字段不是必填", func() {
			So(m.VerifyTableData(0, rdb.Row{"id": 1, "name": "bob", "age": nil}, true), ShouldBeNil)
		})

		Convey("缺少字段", func() {
			err := m.VerifyTableData(0, rdb.Row{"id": 1}, true)
			So(errors.Is(err, rdb.ErrMissingField), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "name")
		})

		Convey("nil 和空指针视为缺失", func() {
			var name *string
			So(errors.Is(m.VerifyTableData(0, rdb.Row{"id": 1, "name": nil}, true), rdb.ErrMissingField), ShouldBeTrue)
			So(errors.Is(m.VerifyTableData(0, rdb.Row{"id": 1, "name": name}, true), rdb.ErrMissingField), ShouldBeTrue)
		})

		Convey("主键只在 requirePKs 时必填", func() {
			So(m.VerifyTableData(1, rdb.Row{"bio": "x"}, false), ShouldBeNil)
			So(errors.Is(m.VerifyTableData(1, rdb.Row{"bio": "x"}, true), rdb.ErrMissingField), ShouldBeTrue)
		})

		Convey("未知的表和字段", func() {
			So(errors.Is(m.VerifyTableData(5, rdb.Row{}, true), rdb.ErrTableNotFound), ShouldBeTrue)
			So(errors.Is(m.VerifyTableData(0, rdb.Row{"id": 1, "name": "a", "x": 1}, true), rdb.ErrInvalidArgument), ShouldBeTrue)
			So(errors.Is(m.VerifyTableData(0, nil, true), rdb.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestAddNew(t *testing.T) {
	Convey("单表插入", t, func() {
		hooks := &recordHooks{}
		m, mock, closeFn := newMockModel(WithHooks(hooks))
		defer closeFn()
		ctx := context.Background()
		insertSQL := `INSERT INTO users ( "id","name" ) VALUES ( $1, $2 ) RETURNING *;`

		Convey("成功", func() {
			mock.ExpectQuery(insertSQL).WithArgs(1, "bob").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "bob", int64(0)))

			input := rdb.Row{"name": "bob", "id": 1}
			row, err := m.AddNew(ctx, 0, input)
			So(err, ShouldBeNil)
			So(row, ShouldResemble, rdb.Row{"id": int64(1), "name": "bob", "age": int64(0)})
			So(hooks.calls, ShouldResemble, []string{"BeforeAddNew", "AfterAddNew"})
			So(input, ShouldHaveLength, 2)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("没有返回行", func() {
			mock.ExpectQuery(insertSQL).WithArgs(1, "bob").WillReturnRows(sqlmock.NewRows([]string{"id"}))

			_, err := m.AddNew(ctx, 0, rdb.Row{"id": 1, "name": "bob"})
			So(errors.Is(err, rdb.ErrNoRows), ShouldBeTrue)
			So(hooks.calls, ShouldResemble, []string{"BeforeAddNew"})
		})

		Convey("执行失败", func() {
			mock.ExpectQuery(insertSQL).WithArgs(1, "bob").WillReturnError(errBoom)

			_, err := m.AddNew(ctx, 0, rdb.Row{"id": 1, "name": "bob"})
			So(errors.Is(err, errBoom), ShouldBeTrue)
		})

		Convey("校验失败不执行", func() {
			_, err := m.AddNew(ctx, 0, rdb.Row{"id": 1})
			So(errors.Is(err, rdb.ErrMissingField), ShouldBeTrue)
			So(hooks.calls, ShouldBeEmpty)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("Before 钩子失败中止", func() {
			hooks.err = errBoom
			_, err := m.AddNew(ctx, 0, rdb.Row{"id": 1, "name": "bob"})
			So(errors.Is(err, errBoom), ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})

	Convey("生成主键", t, func() {
		m, mock, closeFn := newMockModel(
			WithIntGenerator(0, "id", fixedIntGenerator(42)),
			WithStrGenerator(1, "bio", fixedStrGenerator("generated")),
		)
		defer closeFn()
		ctx := context.Background()

		mock.ExpectQuery(`INSERT INTO users ( "id","name" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs(int64(42), "bob").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(42), "bob"))
		row, err := m.AddNew(ctx, 0, rdb.Row{"name": "bob"})
		So(err, ShouldBeNil)
		So(row["id"], ShouldEqual, int64(42))

		mock.ExpectQuery(`INSERT INTO profiles ( "bio","id" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs("given", 7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "bio"}).AddRow(int64(7), "given"))
		row, err = m.AddNew(ctx, 1, rdb.Row{"id": 7, "bio": "given"})
		So(err, ShouldBeNil)
		So(row["bio"], ShouldEqual, "given")
		So(mock.ExpectationsWereMet(), ShouldBeNil)

		Convey("生成失败", func() {
			m, _, closeFn := newMockModel(WithIntGenerator(0, "id", fixedIntGenerator(0)))
			defer closeFn()
			_, err := m.AddNew(ctx, 0, rdb.Row{"name": "bob"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestAddNewTables(t *testing.T) {
	Convey("多表事务插入", t, func() {
		hooks := &recordHooks{}
		m, mock, closeFn := newMockModel(WithHooks(hooks))
		defer closeFn()
		ctx := context.Background()
		rows := []TableRow{
			{Index: 0, Alias: "user", Row: rdb.Row{"id": 1, "name": "bob"}},
			{Index: 1, Row: rdb.Row{"id": 1, "bio": "hi"}},
		}

		Convey("成功提交", func() {
			mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`INSERT INTO users ( "id","name" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs(1, "bob").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bob"))
			mock.ExpectQuery(`INSERT INTO profiles ( "bio","id" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs("hi", 1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "bio"}).AddRow(int64(1), "hi"))
			mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

			results, err := m.AddNewTables(ctx, rows)
			So(err, ShouldBeNil)
			So(results["user"][0]["name"], ShouldEqual, "bob")
			So(results["1"][0]["bio"], ShouldEqual, "hi")
			So(hooks.calls, ShouldResemble, []string{"BeforeAddNew", "AfterAddNew"})
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("执行失败回滚", func() {
			mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`INSERT INTO users ( "id","name" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs(1, "bob").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bob"))
			mock.ExpectQuery(`INSERT INTO profiles ( "bio","id" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs("hi", 1).
				WillReturnError(errBoom)
			mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

			results, err := m.AddNewTables(ctx, rows)
			So(errors.Is(err, errBoom), ShouldBeTrue)
			So(results, ShouldBeEmpty)
			So(hooks.calls, ShouldResemble, []string{"BeforeAddNew"})
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("BeforeAddNew 在构建语句之前执行，可以改写行", func() {
			m, mock, closeFn := newMockModel(WithHooks(&rewriteHooks{recordHooks: hooks}))
			defer closeFn()

			mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`INSERT INTO users ( "id","name" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs(1, "BOB").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "BOB"))
			mock.ExpectQuery(`INSERT INTO profiles ( "bio","id" ) VALUES ( $1, $2 ) RETURNING *;`).WithArgs("hi", 1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "bio"}).AddRow(int64(1), "hi"))
			mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

			results, err := m.AddNewTables(ctx, rows)
			So(err, ShouldBeNil)
			So(results["user"][0]["name"], ShouldEqual, "BOB")
			So(rows[0].Row["name"], ShouldEqual, "bob")
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("校验失败不开启事务", func() {
			rows[1].Row = rdb.Row{"id": 1, "unknown": 1}
			results, err := m.AddNewTables(ctx, rows)
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)
			So(results, ShouldBeEmpty)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("空输入", func() {
			_, err := m.AddNewTables(ctx, nil)
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("删除", t, func() {
		hooks := &recordHooks{}
		m, mock, closeFn := newMockModel(WithHooks(hooks))
		defer closeFn()
		ctx := context.Background()

		Convey("按主键", func() {
			mock.ExpectQuery(`DELETE FROM users WHERE id = $1 RETURNING *;`).WithArgs(1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bob"))

			row, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0, PKValues: []any{1}})
			So(err, ShouldBeNil)
			So(row["name"], ShouldEqual, "bob")
			So(hooks.calls, ShouldResemble, []string{"BeforeDelete", "AfterDelete"})
		})

		Convey("按条件", func() {
			mock.ExpectQuery(`DELETE FROM users WHERE "name" = $1 RETURNING *;`).WithArgs("bob").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

			row, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0, Condition: &condition.Term{Field: "name", Value: "bob"}})
			So(err, ShouldBeNil)
			So(row["id"], ShouldEqual, int64(1))
		})

		Convey("按 where 子句", func() {
			mock.ExpectQuery(`DELETE FROM users WHERE age > 10 RETURNING *;`).
				WillReturnRows(sqlmock.NewRows([]string{"id"}))

			_, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0, WhereClause: "age > 10"})
			So(errors.Is(err, rdb.ErrNoRows), ShouldBeTrue)
		})

		Convey("缺少删除范围", func() {
			_, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0})
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)
			_, err = m.Delete(ctx, nil)
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)
			So(hooks.calls, ShouldBeEmpty)
		})

		Convey("主键数量不匹配", func() {
			_, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0, PKValues: []any{1, 2}})
			So(errors.Is(err, rdb.ErrFieldValueMismatch), ShouldBeTrue)
		})
	})
}

func TestUpdate(t *testing.T) {
	Convey("更新", t, func() {
		hooks := &recordHooks{}
		m, mock, closeFn := newMockModel(WithHooks(hooks))
		defer closeFn()
		ctx := context.Background()

		Convey("按主键", func() {
			mock.ExpectQuery(`UPDATE users SET "id" = $1, "name" = $2 WHERE id = $3 RETURNING *;`).WithArgs(1, "alice", 1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))

			rows, err := m.Update(ctx, &UpdateRequest{TableIndex: 0, Data: rdb.Row{"id": 1, "name": "alice"}, PKValues: []any{1}})
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(hooks.calls, ShouldResemble, []string{"BeforeUpdate", "AfterUpdate"})
		})

		Convey("按条件，占位符接在 SET 之后", func() {
			mock.ExpectQuery(`UPDATE users SET "id" = $1, "name" = $2 WHERE "age" >= $3 RETURNING *;`).WithArgs(1, "x", 18).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

			rows, err := m.Update(ctx, &UpdateRequest{
				TableIndex: 0,
				Data:       rdb.Row{"id": 1, "name": "x"},
				Condition:  &condition.Range{Field: "age", Gte: 18},
			})
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
		})

		Convey("缺少非空字段的部分更新被拒绝", func() {
			_, err := m.Update(ctx, &UpdateRequest{
				TableIndex: 0,
				Data:       rdb.Row{"name": "x"},
				Condition:  &condition.Range{Field: "age", Gte: 18},
			})
			So(errors.Is(err, rdb.ErrMissingField), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "id is a not null field of table users")

			_, err = m.Update(ctx, &UpdateRequest{TableIndex: 0, Data: rdb.Row{"id": 1}, WhereClause: "id = 1"})
			So(errors.Is(err, rdb.ErrMissingField), ShouldBeTrue)
			So(hooks.calls, ShouldResemble, []string{"BeforeUpdate", "BeforeUpdate"})
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("按主键时 Data 必须包含主键", func() {
			_, err := m.Update(ctx, &UpdateRequest{TableIndex: 0, Data: rdb.Row{"name": "alice"}, PKValues: []any{1}})
			So(errors.Is(err, rdb.ErrMissingField), ShouldBeTrue)
		})

		Convey("没有更新任何行", func() {
			mock.ExpectQuery(`UPDATE users SET "id" = $1, "name" = $2 WHERE id = 100 RETURNING *;`).WithArgs(100, "x").
				WillReturnRows(sqlmock.NewRows([]string{"id"}))

			_, err := m.Update(ctx, &UpdateRequest{TableIndex: 0, Data: rdb.Row{"id": 100, "name": "x"}, WhereClause: "id = 100"})
			So(errors.Is(err, rdb.ErrNoRows), ShouldBeTrue)
		})

		Convey("缺少更新范围", func() {
			_, err := m.Update(ctx, &UpdateRequest{TableIndex: 0, Data: rdb.Row{"name": "x"}})
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("查询", t, func() {
		hooks := &recordHooks{}
		m, mock, closeFn := newMockModel(WithHooks(hooks))
		defer closeFn()
		ctx := context.Background()

		Convey("单表按主键", func() {
			mock.ExpectQuery(`SELECT * FROM users WHERE id = $1;`).WithArgs(1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bob"))

			rows, err := m.Load(ctx, &LoadRequest{TableIndex: intPtr(0), Fields: builder.AllFields, PKValues: []any{1}})
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []rdb.Row{{"id": int64(1), "name": "bob"}})
			So(hooks.calls, ShouldResemble, []string{"BeforeLoad", "AfterLoad"})
		})

		Convey("单表按条件带分页", func() {
			mock.ExpectQuery(`SELECT "name" FROM users WHERE "name" LIKE $1 ORDER BY "id" DESC LIMIT 10;`).WithArgs("b%").
				WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("bob"))

			rows, err := m.Load(ctx, &LoadRequest{
				TableIndex: intPtr(0),
				Fields:     []string{"name"},
				Condition:  &condition.Prefix{Field: "name", Value: "b"},
				Options:    &builder.QueryOptions{OrderBy: "id", OrderDesc: true, Limit: 10},
			})
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
		})

		Convey("跨表 join", func() {
			mock.ExpectQuery(`SELECT A."name", B."bio" FROM users A INNER JOIN profiles B ON A.id = B.id WHERE A.id = 1;`).
				WillReturnRows(sqlmock.NewRows([]string{"name", "bio"}).AddRow("bob", "hi"))

			rows, err := m.Load(ctx, &LoadRequest{Fields: []string{"A.name", "B.bio"}, WhereClause: "A.id = 1"})
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []rdb.Row{{"name": "bob", "bio": "hi"}})
		})

		Convey("构建失败返回错误", func() {
			_, err := m.Load(ctx, &LoadRequest{TableIndex: intPtr(0)})
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)

			_, err = m.Load(ctx, &LoadRequest{Fields: builder.AllFields, PKValues: []any{1}})
			So(errors.Is(err, rdb.ErrInvalidArgument), ShouldBeTrue)

			_, err = m.Load(ctx, &LoadRequest{TableIndex: intPtr(3), Fields: builder.AllFields})
			So(errors.Is(err, rdb.ErrTableNotFound), ShouldBeTrue)
		})

		Convey("Before 钩子失败中止", func() {
			hooks.err = errBoom
			_, err := m.Load(ctx, &LoadRequest{TableIndex: intPtr(0), Fields: builder.AllFields})
			So(errors.Is(err, errBoom), ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})
}

func TestLoadWithCache(t *testing.T) {
	Convey("查询缓存", t, func() {
		c := cache.NewFreeCacheWithOptions(&cache.FreeCacheOptions{Size: 1024 * 1024})
		m, mock, closeFn := newMockModel(WithCache(c, time.Minute))
		defer closeFn()
		ctx := context.Background()
		req := &LoadRequest{TableIndex: intPtr(0), Fields: builder.AllFields, PKValues: []any{1}}

		mock.ExpectQuery(`SELECT * FROM users WHERE id = $1;`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bob"))

		first, err := m.Load(ctx, req)
		So(err, ShouldBeNil)
		second, err := m.Load(ctx, req)
		So(err, ShouldBeNil)
		So(second, ShouldResemble, first)
		So(mock.ExpectationsWereMet(), ShouldBeNil)

		Convey("写操作后失效", func() {
			mock.ExpectQuery(`DELETE FROM users WHERE id = $1 RETURNING *;`).WithArgs(1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bob"))
			mock.ExpectQuery(`SELECT * FROM users WHERE id = $1;`).WithArgs(1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

			_, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0, PKValues: []any{1}})
			So(err, ShouldBeNil)
			So(c.Len(), ShouldEqual, 0)

			rows, err := m.Load(ctx, req)
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})
}

// racingCache 在 Get 未命中后清空缓存，模拟查询期间并发的写操作
type racingCache struct {
	*cache.FreeCache
}

func (c racingCache) Get(ctx context.Context, key string) ([]rdb.Row, bool, error) {
	rows, ok, err := c.FreeCache.Get(ctx, key)
	if err == nil && !ok {
		err = c.FreeCache.Purge(ctx)
	}
	return rows, ok, err
}

func TestLoadCacheRace(t *testing.T) {
	Convey("查询期间发生写操作时结果不入缓存", t, func() {
		c := cache.NewFreeCacheWithOptions(&cache.FreeCacheOptions{Size: 1024 * 1024})
		m, mock, closeFn := newMockModel(WithCache(racingCache{c}, 0))
		defer closeFn()
		ctx := context.Background()
		req := &LoadRequest{TableIndex: intPtr(0), Fields: builder.AllFields, PKValues: []any{1}}

		mock.ExpectQuery(`SELECT * FROM users WHERE id = $1;`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "old"))
		mock.ExpectQuery(`SELECT * FROM users WHERE id = $1;`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "new"))

		rows, err := m.Load(ctx, req)
		So(err, ShouldBeNil)
		So(rows[0]["name"], ShouldEqual, "old")
		So(c.Len(), ShouldEqual, 0)

		rows, err = m.Load(ctx, req)
		So(err, ShouldBeNil)
		So(rows[0]["name"], ShouldEqual, "new")
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestModelWithSQLite(t *testing.T) {
	Convey("sqlite 读写", t, func() {
		db, err := sql.Open("sqlite3", ":memory:")
		So(err, ShouldBeNil)
		defer db.Close()
		db.SetMaxOpenConns(1)

		da, err := dataaccess.New(pool.NewPoolWithDB(db), dataaccess.WithLogger(logger.Nop{}))
		So(err, ShouldBeNil)
		ctx := context.Background()

		m, err := NewModel(ctx, da, testTables(), WithAutoCreate(), WithLogger(logger.Nop{}))
		So(err, ShouldBeNil)

		row, err := m.AddNew(ctx, 0, rdb.Row{"id": 1, "name": "bob"})
		So(err, ShouldBeNil)
		So(row, ShouldResemble, rdb.Row{"id": int64(1), "name": "bob", "age": int64(0)})

		results, err := m.AddNewTables(ctx, []TableRow{
			{Index: 0, Alias: "user", Row: rdb.Row{"id": 2, "name": "alice", "age": 20}},
			{Index: 1, Alias: "profile", Row: rdb.Row{"id": 2, "bio": "hello"}},
		})
		So(err, ShouldBeNil)
		So(results["user"][0]["age"], ShouldEqual, int64(20))
		So(results["profile"][0]["bio"], ShouldEqual, "hello")

		rows, err := m.Update(ctx, &UpdateRequest{TableIndex: 0, Data: rdb.Row{"id": 1, "name": "bobby"}, Condition: &condition.Term{Field: "id", Value: 1}})
		So(err, ShouldBeNil)
		So(rows[0]["name"], ShouldEqual, "bobby")

		rows, err = m.Load(ctx, &LoadRequest{Fields: []string{"A.name", "B.bio"}, Condition: &condition.Term{Field: "A.id", Value: 2}})
		So(err, ShouldBeNil)
		So(rows, ShouldResemble, []rdb.Row{{"name": "alice", "bio": "hello"}})

		rows, err = m.Load(ctx, &LoadRequest{TableIndex: intPtr(0), Fields: []string{"id"}, Options: &builder.QueryOptions{OrderBy: "id"}})
		So(err, ShouldBeNil)
		So(rows, ShouldResemble, []rdb.Row{{"id": int64(1)}, {"id": int64(2)}})

		deleted, err := m.Delete(ctx, &DeleteRequest{TableIndex: 0, PKValues: []any{1}})
		So(err, ShouldBeNil)
		So(deleted["name"], ShouldEqual, "bobby")

		_, err = m.Delete(ctx, &DeleteRequest{TableIndex: 0, PKValues: []any{1}})
		So(errors.Is(err, rdb.ErrNoRows), ShouldBeTrue)

		Convey("重复主键时事务回滚", func() {
			_, err := m.AddNewTables(ctx, []TableRow{
				{Index: 1, Row: rdb.Row{"id": 3, "bio": "x"}},
				{Index: 0, Row: rdb.Row{"id": 2, "name": "dup"}},
			})
			So(err, ShouldNotBeNil)

			rows, err := m.Load(ctx, &LoadRequest{TableIndex: intPtr(1), Fields: builder.AllFields, PKValues: []any{3}})
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})
	})
}
