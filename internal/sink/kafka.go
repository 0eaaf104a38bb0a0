package sink

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type Kafka struct {
	producer sarama.SyncProducer
	log      zerolog.Logger
}

func NewKafka(brokers []string, log zerolog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true // required by SyncProducer
	cfg.Net.DialTimeout = 30 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.Info().Strs("brokers", brokers).Msg("kafka producer ready")
	return NewKafkaProducer(producer, log), nil
}

// NewKafkaProducer wraps an existing producer, such as sarama's mocks.
func NewKafkaProducer(p sarama.SyncProducer, log zerolog.Logger) *Kafka {
	return &Kafka{producer: p, log: log}
}

func (k *Kafka) WriteMessage(topic string, msg []byte) error {
	if k.producer == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(msg),
	})
	if err != nil {
		k.log.Error().Err(err).Str("topic", topic).Msg("kafka send failed")
		return err
	}
	k.log.Debug().Str("topic", topic).Int32("partition", partition).Int64("offset", offset).Msg("kafka sent")
	return nil
}

func (k *Kafka) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
