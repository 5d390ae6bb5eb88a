package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/infra/config"
)

// Producer owns the async producer used for audit and cache-invalidation events.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	errChan  chan error
	done     chan struct{}
}

func newSaramaConfig(clientID string) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.ClientID = clientID

	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	// Messages are keyed by user so one user's role changes stay ordered.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	return saramaConfig
}

// NewProducer connects to the configured brokers.
func NewProducer(cfg config.KafkaSettings, clientID string, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("create kafka producer: no brokers configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(producer, cfg, logger)

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		errChan:  make(chan error, 256),
		done:     make(chan struct{}),
	}
	go p.handleErrors()
	return p
}

// handleErrors drains producer errors; publishing is fire-and-forget so errors are only logged.
func (p *Producer) handleErrors() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			p.logger.Error("Kafka producer error",
				zap.Error(err.Err),
				zap.String("topic", err.Msg.Topic),
			)
			select {
			case p.errChan <- err.Err:
			default:
				p.logger.Warn("Error channel full, dropping error")
			}
		case <-p.done:
			return
		}
	}
}

// Producer returns the underlying Sarama AsyncProducer.
func (p *Producer) Producer() sarama.AsyncProducer {
	return p.producer
}

// Errors exposes delivery failures for monitoring.
func (p *Producer) Errors() <-chan error {
	return p.errChan
}

// Close flushes pending messages and stops the error loop.
func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")
	close(p.done)

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the topic for eventType under the configured prefix.
func (p *Producer) TopicName(eventType string) string {
	return topicName(p.cfg.TopicPrefix, eventType)
}

func topicName(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}

	withDot := prefix + "."
	if strings.HasPrefix(eventType, withDot) {
		return eventType
	}
	return withDot + eventType
}
