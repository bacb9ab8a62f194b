package order

import (
	"context"

	"spotflow/internal/model"
)

// Journal 订单和成交的持久化记录，失败只记日志，不回滚账本
type Journal interface {
	RecordOrder(ctx context.Context, record *model.OrderRecord) error
	RecordFill(ctx context.Context, record *model.FillRecord) error
}

// FillHistory 成交记录查询，最新的在前
type FillHistory interface {
	FillsBySymbol(ctx context.Context, symbol string, limit int) ([]model.FillRecord, error)
}

type nopJournal struct{}

func (nopJournal) RecordOrder(context.Context, *model.OrderRecord) error { return nil }
func (nopJournal) RecordFill(context.Context, *model.FillRecord) error   { return nil }
