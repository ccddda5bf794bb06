package emitters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tipflow-ledger/internal/config"
	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var _ interfaces.EventEmitter = (*KafkaEmitter)(nil)

// messageWriter is the part of kafka.Writer the emitter uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes settlement events to a Kafka topic keyed by contract
type KafkaEmitter struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       *zerolog.Logger
	mu           sync.Mutex
}

// NewKafkaEmitter creates a new KafkaEmitter
func NewKafkaEmitter(cfg config.KafkaConfig, logger *zerolog.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.BrokerAddress),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafka.RequireOne,
		},
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

func (k *KafkaEmitter) EmitEvent(event models.SettlementEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return fmt.Errorf("kafka emitter is closed")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.writeTimeout)
	defer cancel()

	// keyed by contract so settlements of one creator stay ordered
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Contract),
		Value: value,
		Headers: []kafka.Header{
			{Key: "chain", Value: []byte(event.Chain.String())},
			{Key: "source", Value: []byte(event.Source)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	k.logger.Info().
		Str("chain", event.Chain.String()).
		Str("txHash", event.TxHash).
		Msg("Successfully emitted settlement event to Kafka")
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
