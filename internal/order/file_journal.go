package order

import (
	"context"

	"spotflow/internal/model"
	"spotflow/pkg/recorder"

	"github.com/goccy/go-json"
)

type journalLine struct {
	Type  string             `json:"type"`
	Order *model.OrderRecord `json:"order,omitempty"`
	Fill  *model.FillRecord  `json:"fill,omitempty"`
}

// FileJournal 未配置数据库时使用的 JSON 行文件记录
type FileJournal struct {
	rec *recorder.JSONFileRecorder
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{rec: recorder.NewJSONFileRecorder(path)}
}

func (j *FileJournal) RecordOrder(_ context.Context, r *model.OrderRecord) error {
	return j.rec.Record(journalLine{Type: "order", Order: r})
}

func (j *FileJournal) RecordFill(_ context.Context, r *model.FillRecord) error {
	return j.rec.Record(journalLine{Type: "fill", Fill: r})
}

// FillsBySymbol 从文件中读取该币对的成交，最新的在前，limit<=0 时返回全部
func (j *FileJournal) FillsBySymbol(_ context.Context, symbol string, limit int) ([]model.FillRecord, error) {
	var fills []model.FillRecord
	err := j.rec.Scan(func(line []byte) error {
		var l journalLine
		if err := json.Unmarshal(line, &l); err != nil {
			return err
		}
		if l.Type == "fill" && l.Fill != nil && l.Fill.Symbol == symbol {
			fills = append(fills, *l.Fill)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, k := 0, len(fills)-1; i < k; i, k = i+1, k-1 {
		fills[i], fills[k] = fills[k], fills[i]
	}
	if limit > 0 && len(fills) > limit {
		fills = fills[:limit]
	}
	return fills, nil
}

func (j *FileJournal) Close() error {
	return j.rec.Close()
}
