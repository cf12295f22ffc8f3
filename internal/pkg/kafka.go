package pkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrNoBrokers = errors.New("kafka: no brokers configured")

// KafkaProducer 通知镜像：通知写库成功后同步投递一份给下游（推送、邮件摘要等）
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// WriteTimeout 单次投递上限，通知是尽力而为，不能拖住触发它的请求
	WriteTimeout time.Duration
}

func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		cfg.Topic = "notifications"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  2,
	}
	return &KafkaProducer{writer: w, topic: cfg.Topic}, nil
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Send 以接收者ID为 key，同一用户的通知落在同一分区，保持单用户内有序
func (p *KafkaProducer) Send(ctx context.Context, recipientID string, event []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipientID),
		Value: event,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka send to %s: %w", p.topic, err)
	}
	return nil
}
