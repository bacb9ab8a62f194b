package kafka

import (
	"context"
	"sync"

	"spotflow/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ProducerService Kafka 生产者，定义接口方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
	Close()
}

type kafkaProducer struct {
	brokerURL string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaProducer(brokerURL string) ProducerService {
	return &kafkaProducer{
		brokerURL: brokerURL,
		writers:   make(map[string]*kafka.Writer),
	}
}

// 每个 topic 一个 Writer
func (p *kafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:     kafka.TCP(p.brokerURL),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // 相同 key（币对）进入同一个 Partition，保证顺序
		}
		p.writers[topic] = w
	}
	return w
}

func (p *kafkaProducer) Produce(ctx context.Context, topic string, key, value []byte) error {
	return p.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *kafkaProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			logger.Warnf("Error closing kafka writer %s: %v", topic, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
}
