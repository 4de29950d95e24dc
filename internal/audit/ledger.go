package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Ledger is the immutable, append-only audit destination.
type Ledger interface {
	// Append writes a batch and returns only once every record is durable.
	Append(ctx context.Context, records []Record) error
}

// KafkaLedger appends records to a Kafka topic keyed by record ID.
type KafkaLedger struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaLedger wraps an existing producer.
func NewKafkaLedger(producer sarama.SyncProducer, topic string) *KafkaLedger {
	return &KafkaLedger{producer: producer, topic: topic}
}

// DialKafkaLedger connects a producer that waits for all in-sync replicas.
func DialKafkaLedger(brokers []string, topic string) (*KafkaLedger, error) {
	producer, err := sarama.NewSyncProducer(brokers, LedgerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaLedger(producer, topic), nil
}

// LedgerConfig is the producer configuration used for the ledger.
func LedgerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "x402-crawl-gateway"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func (k *KafkaLedger) Append(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:     k.topic,
			Key:       sarama.StringEncoder(r.ID.String()),
			Value:     sarama.ByteEncoder(payload),
			Timestamp: r.Timestamp,
			Headers: []sarama.RecordHeader{
				{Key: []byte("outcome"), Value: []byte(r.Outcome)},
			},
		})
	}
	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("append %d records to %s: %w", len(msgs), k.topic, err)
	}
	return nil
}

func (k *KafkaLedger) Close() error {
	return k.producer.Close()
}
