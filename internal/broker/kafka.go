package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka is the kafka-go backed Client. It lazily manages one writer per
// topic, requires acknowledgement from all in-sync replicas, and writes
// synchronously so a nil error means the broker has the record.
type Kafka struct {
	brokers []string
	timeout time.Duration

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafka constructs a Kafka client. timeout bounds each Send.
func NewKafka(brokers []string, timeout time.Duration) *Kafka {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Kafka{
		brokers: brokers,
		timeout: timeout,
		writers: make(map[string]*kafka.Writer),
	}
}

// Send writes one keyed record and waits for the broker acknowledgement.
func (k *Kafka) Send(ctx context.Context, topic, key string, value []byte, headers ...Header) error {
	writer := k.writerForTopic(topic)

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: h.Key, Value: h.Value})
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Op: "send " + topic, Retryable: true, Err: ErrTimeout}
		}
		return &Error{Op: "send " + topic, Retryable: true, Err: err}
	}
	return nil
}

func (k *Kafka) writerForTopic(topic string) *kafka.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if writer, ok := k.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	k.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var firstErr error
	for topic, writer := range k.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(k.writers, topic)
	}
	return firstErr
}
