package hook

import (
	"context"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/model"
)

// Nop 所有阶段都不做任何事，嵌入后只需实现关心的方法
type Nop struct{}

func (Nop) BeforeAddNew(context.Context, []model.TableRow) error     { return nil }
func (Nop) AfterAddNew(context.Context, *model.AddNewResult) error   { return nil }
func (Nop) BeforeDelete(context.Context, *model.DeleteRequest) error { return nil }
func (Nop) AfterDelete(context.Context, rdb.Row) error               { return nil }
func (Nop) BeforeUpdate(context.Context, *model.UpdateRequest) error { return nil }
func (Nop) AfterUpdate(context.Context, []rdb.Row) error             { return nil }
func (Nop) BeforeLoad(context.Context, *model.LoadRequest) error     { return nil }
func (Nop) AfterLoad(context.Context, []rdb.Row) error               { return nil }

// Chain 按顺序调用，遇到第一个错误即返回
type Chain []model.Hooks

func NewChain(hooks ...model.Hooks) Chain {
	chain := make(Chain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c Chain) each(fn func(h model.Hooks) error) error {
	for _, h := range c {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) BeforeAddNew(ctx context.Context, rows []model.TableRow) error {
	return c.each(func(h model.Hooks) error { return h.BeforeAddNew(ctx, rows) })
}

func (c Chain) AfterAddNew(ctx context.Context, result *model.AddNewResult) error {
	return c.each(func(h model.Hooks) error { return h.AfterAddNew(ctx, result) })
}

func (c Chain) BeforeDelete(ctx context.Context, req *model.DeleteRequest) error {
	return c.each(func(h model.Hooks) error { return h.BeforeDelete(ctx, req) })
}

func (c Chain) AfterDelete(ctx context.Context, row rdb.Row) error {
	return c.each(func(h model.Hooks) error { return h.AfterDelete(ctx, row) })
}

func (c Chain) BeforeUpdate(ctx context.Context, req *model.UpdateRequest) error {
	return c.each(func(h model.Hooks) error { return h.BeforeUpdate(ctx, req) })
}

func (c Chain) AfterUpdate(ctx context.Context, rows []rdb.Row) error {
	return c.each(func(h model.Hooks) error { return h.AfterUpdate(ctx, rows) })
}

func (c Chain) BeforeLoad(ctx context.Context, req *model.LoadRequest) error {
	return c.each(func(h model.Hooks) error { return h.BeforeLoad(ctx, req) })
}

func (c Chain) AfterLoad(ctx context.Context, rows []rdb.Row) error {
	return c.each(func(h model.Hooks) error { return h.AfterLoad(ctx, rows) })
}
