package dao

import (
	"context"

	"spotflow/internal/model"

	"gorm.io/gorm"
)

// OrderDao 订单和成交记录，实现 order.Journal
type OrderDao struct {
	db *gorm.DB
}

func NewOrderDao(db *gorm.DB) *OrderDao {
	return &OrderDao{db: db}
}

// RecordOrder 插入下单记录
func (d *OrderDao) RecordOrder(ctx context.Context, record *model.OrderRecord) error {
	return d.db.WithContext(ctx).Create(record).Error
}

// RecordFill 插入成交记录
func (d *OrderDao) RecordFill(ctx context.Context, record *model.FillRecord) error {
	return d.db.WithContext(ctx).Create(record).Error
}

// FillsBySymbol 某个币对最近的成交，按时间倒序，实现 order.FillHistory
func (d *OrderDao) FillsBySymbol(ctx context.Context, symbol string, limit int) (fills []model.FillRecord, err error) {
	err = d.fillsQuery(ctx, symbol, limit).Find(&fills).Error
	return
}

func (d *OrderDao) fillsQuery(ctx context.Context, symbol string, limit int) *gorm.DB {
	return d.db.WithContext(ctx).Model(&model.FillRecord{}).
		Where("symbol = ?", symbol).
		Order("created_at DESC, id DESC").
		Limit(limit)
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.OrderRecord{}, &model.FillRecord{})
}
