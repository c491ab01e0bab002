package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"pricefeed/pkg/exception"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
)

const (
	headerRunID    = "run_id"
	headerSequence = "sequence"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOption configures the Kafka sink.
type KafkaOption struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Kafka publishes one message per record, keyed by symbol so a symbol
// stays on one partition in sequence order.
type Kafka struct {
	writer messageWriter
}

func NewKafka(opt KafkaOption) (*Kafka, error) {
	if len(opt.Brokers) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "kafka brokers are empty")
	}
	if opt.Topic == "" {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "kafka topic is empty")
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = 100
	}
	if opt.BatchTimeout <= 0 {
		opt.BatchTimeout = 10 * time.Millisecond
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = 10 * time.Second
	}

	return newKafka(&kafka.Writer{
		Addr:         kafka.TCP(opt.Brokers...),
		Topic:        opt.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    opt.BatchSize,
		BatchTimeout: opt.BatchTimeout,
		WriteTimeout: opt.WriteTimeout,
	})
}

func newKafka(w messageWriter) (*Kafka, error) {
	if w == nil {
		return nil, exception.ErrNilWriter
	}
	return &Kafka{writer: w}, nil
}

func (k *Kafka) Name() string {
	return "kafka"
}

func (k *Kafka) Write(ctx context.Context, batch Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(batch.Records))
	for _, rec := range batch.Records {
		value, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "marshal record").With("sequence", rec.Sequence)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.Symbol),
			Value: value,
			Headers: []kafka.Header{
				{Key: headerRunID, Value: []byte(batch.RunID)},
				{Key: headerSequence, Value: []byte(strconv.FormatInt(int64(rec.Sequence), 10))},
			},
			Time: batch.CompletedAt,
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish records, run %s: %w", batch.RunID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
