package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Priority == PriorityHigh {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "order event",
		"event_id", e.ID,
		"type", e.Type,
		"order_id", e.OrderID,
		"order_number", e.OrderNumber,
		"user_id", e.UserID,
		"status", e.Status,
		"previous_status", e.PreviousStatus,
		"emergency", e.Emergency,
	)
	return nil
}

// KafkaConfig for the order event topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	MaxAttempts  int
}

// KafkaSink publishes events to one topic, keyed by order id so that all
// events of an order land on the same partition in order.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: brokers and topic are required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxAttempts,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: w, topic: cfg.Topic}, nil
}

func (s *KafkaSink) Name() string { return "kafka:" + s.topic }

func (s *KafkaSink) Publish(ctx context.Context, e Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka sink: write %s: %w", e.Type, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func toMessage(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka sink: encode %s: %w", e.Type, err)
	}
	return kafka.Message{
		Key:   []byte(e.OrderID),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
			{Key: "priority", Value: []byte(e.Priority.String())},
		},
	}, nil
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
