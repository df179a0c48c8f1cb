package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter は kafka.Writer のうち送信で使う操作
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka はトピックへ監視依頼を書き込みます。キーはディストリビューションIDです
type Kafka struct {
	writer MessageWriter
	topic  string
}

// NewKafka はブローカーとトピックから Kafka トリガーを作成します
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaWithWriter(w, topic), nil
}

// NewKafkaWithWriter は既存のライターを使う Kafka トリガーを作成します
func NewKafkaWithWriter(w MessageWriter, topic string) *Kafka {
	return &Kafka{writer: w, topic: topic}
}

// Start は監視依頼を1件書き込みます。再送は行いません
func (k *Kafka) Start(ctx context.Context, req Request) error {
	body, err := req.payload()
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(req.DistributionID),
		Value: body,
		Time:  req.RequestedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(DetailType)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: write to %s: %w", k.topic, err)
	}
	return nil
}

// Close はライターを閉じます
func (k *Kafka) Close() error {
	return k.writer.Close()
}
