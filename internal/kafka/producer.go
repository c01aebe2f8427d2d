package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/paperhub/backend-go/internal/logger"
	"go.uber.org/zap"
)

// Producer Kafka生产者，发布文档生命周期事件
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// DocumentEvent 文档生命周期事件
type DocumentEvent struct {
	Type       string    `json:"type"` // document.ingested | document.deleted | document.repaired
	DocumentID uint      `json:"document_id"`
	UserID     uint      `json:"user_id"`
	Name       string    `json:"name,omitempty"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendDocumentEvent 发送文档事件；producer未初始化时静默跳过
func (p *Producer) SendDocumentEvent(event *DocumentEvent) error {
	if p == nil || p.producer == nil {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal document event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.DocumentID)),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send document event: %w", err)
	}

	logger.Debug("document event sent",
		zap.String("type", event.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
