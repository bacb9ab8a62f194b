package signal

import (
	"context"
	"sync"

	"spotflow/internal/model"
)

// Source 每个周期为每个币对给出一个动作
type Source interface {
	Next(ctx context.Context, symbol string) (model.Action, error)
}

// Static 固定动作序列，按币对依次返回，用完后返回 Hold
type Static struct {
	mu      sync.Mutex
	actions map[string][]model.Action
}

func NewStatic(actions map[string][]model.Action) *Static {
	cp := make(map[string][]model.Action, len(actions))
	for k, v := range actions {
		cp[k] = append([]model.Action(nil), v...)
	}
	return &Static{actions: cp}
}

func (s *Static) Next(_ context.Context, symbol string) (model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.actions[symbol]
	if len(queue) == 0 {
		return model.ActHold, nil
	}
	s.actions[symbol] = queue[1:]
	return queue[0], nil
}
