package dao

import (
	"context"
	"testing"

	"spotflow/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// 不连接数据库，只生成 SQL
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/spotflow?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestOrderDao_RecordFill(t *testing.T) {
	db := dryRunDB(t)
	d := NewOrderDao(db)

	rec := &model.FillRecord{
		OrderId:  "abc",
		Symbol:   "BTC/USDT",
		Side:     model.Buy,
		Quantity: decimal.NewFromInt(2),
		Price:    decimal.NewFromInt(40),
	}
	require.NoError(t, d.RecordFill(context.Background(), rec))

	stmt := db.Session(&gorm.Session{DryRun: true}).Create(&model.FillRecord{OrderId: "x"}).Statement
	assert.Contains(t, stmt.SQL.String(), "INSERT INTO `fill_record`")
}

func TestOrderDao_FillsBySymbol(t *testing.T) {
	db := dryRunDB(t)
	d := NewOrderDao(db)
	ctx := context.Background()

	// DryRun 不执行查询
	fills, err := d.FillsBySymbol(ctx, "ETH/USDT", 20)
	require.NoError(t, err)
	assert.Empty(t, fills)

	stmt := d.fillsQuery(ctx, "ETH/USDT", 20).Find(&[]model.FillRecord{}).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "FROM `fill_record`")
	assert.Contains(t, sql, "ORDER BY created_at DESC, id DESC")
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, stmt.Vars, "ETH/USDT")
}
