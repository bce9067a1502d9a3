package hook

import (
	"context"

	"github.com/hatlonely/pgmodel/log"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/model"
)

// Audit 记录每次写操作的结果，读操作只记录行数
type Audit struct {
	logger logger.Logger
}

func NewAudit(l logger.Logger) *Audit {
	if l == nil {
		l = log.Default()
	}
	return &Audit{logger: l.WithGroup("audit")}
}

func (a *Audit) BeforeAddNew(ctx context.Context, rows []model.TableRow) error {
	indexes := make([]int, len(rows))
	for i, tr := range rows {
		indexes[i] = tr.Index
	}
	a.logger.DebugContext(ctx, "add new", "tables", indexes)
	return nil
}

func (a *Audit) AfterAddNew(ctx context.Context, result *model.AddNewResult) error {
	if result.Rows != nil {
		a.logger.InfoContext(ctx, "added", "results", len(result.Rows))
		return nil
	}
	a.logger.InfoContext(ctx, "added", "row", result.Row)
	return nil
}

func (a *Audit) BeforeDelete(ctx context.Context, req *model.DeleteRequest) error {
	a.logger.DebugContext(ctx, "delete", "table", req.TableIndex, "pkValues", req.PKValues, "where", req.WhereClause)
	return nil
}

func (a *Audit) AfterDelete(ctx context.Context, row rdb.Row) error {
	a.logger.InfoContext(ctx, "deleted", "row", row)
	return nil
}

func (a *Audit) BeforeUpdate(ctx context.Context, req *model.UpdateRequest) error {
	a.logger.DebugContext(ctx, "update", "table", req.TableIndex, "pkValues", req.PKValues, "where", req.WhereClause)
	return nil
}

func (a *Audit) AfterUpdate(ctx context.Context, rows []rdb.Row) error {
	a.logger.InfoContext(ctx, "updated", "rows", len(rows))
	return nil
}

func (a *Audit) BeforeLoad(ctx context.Context, req *model.LoadRequest) error {
	return nil
}

func (a *Audit) AfterLoad(ctx context.Context, rows []rdb.Row) error {
	a.logger.DebugContext(ctx, "loaded", "rows", len(rows))
	return nil
}
