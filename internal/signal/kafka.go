package signal

import (
	"context"

	"spotflow/internal/model"
	"spotflow/pkg/kafka"
	"spotflow/pkg/logger"

	"github.com/goccy/go-json"
)

// KafkaFeed 从 Kafka topic 读取信号写入 Inbox
type KafkaFeed struct {
	consumer kafka.ConsumerService
	inbox    *Inbox
	topic    string
	groupID  string
}

func NewKafkaFeed(consumer kafka.ConsumerService, inbox *Inbox, topic, groupID string) *KafkaFeed {
	return &KafkaFeed{consumer: consumer, inbox: inbox, topic: topic, groupID: groupID}
}

// Run 阻塞直到 ctx 结束
func (f *KafkaFeed) Run(ctx context.Context) error {
	msgs, err := f.consumer.Consume(ctx, f.topic, f.groupID)
	if err != nil {
		return err
	}
	defer f.consumer.Close()

	for m := range msgs {
		f.handle(m.Value)
	}
	return ctx.Err()
}

func (f *KafkaFeed) handle(value []byte) {
	var msg model.SignalMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		logger.Warnf("[KafkaFeed] 信号解析失败: %v, body: %s", err, string(value))
		return
	}
	if err := f.inbox.Push(msg); err != nil {
		logger.Warnf("[KafkaFeed] 信号被拒绝 %s %s: %v", msg.Symbol, msg.Action, err)
		return
	}
	logger.Infof("[KafkaFeed] 收到信号 %s %s strategy=%s", msg.Symbol, msg.Action, msg.Strategy)
}
