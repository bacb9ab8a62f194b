package kafka

import (
	"context"
	"time"

	"spotflow/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerService 消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 启动一个协程消费指定主题，将消息发送到返回的通道，ctx 结束时通道关闭
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
	Close()
}

type kafkaConsumer struct {
	brokerURL string
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{
		brokerURL: brokerURL,
	}
}

func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.brokerURL},
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		// 交易信号只关心最新的
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second, // 自动提交，循环中不手动 CommitMessages
		MaxAttempts:    3,
	})
	outputCh := make(chan kafka.Message, 100)

	go func() {
		defer close(outputCh)
		defer r.Close()
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				// Context 被取消（服务关闭），正常退出
				if ctx.Err() != nil {
					logger.Infof("Kafka consumer for topic %s finished.", topic)
					return
				}
				logger.Errorf("Kafka read error on topic %s: %v", topic, err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			// 信号不能丢，通道满时阻塞
			select {
			case outputCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return outputCh, nil
}

func (c *kafkaConsumer) Close() {
	logger.Infof("Kafka consumer service closing...")
}
