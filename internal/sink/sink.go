// Package sink writes dispatch results to an output destination: the console,
// JSON-lines files, a Kafka topic or an S3 object.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"dronedispatch/internal/config"
)

// Sink receives serialized messages keyed by topic.
type Sink interface {
	WriteMessage(topic string, msg []byte) error
	Close() error
}

// New builds the sink selected by cfg.Kind.
func New(ctx context.Context, cfg config.SinkConfig, log zerolog.Logger) (Sink, error) {
	switch cfg.Kind {
	case "", "console":
		return NewConsole(os.Stdout), nil
	case "file":
		return NewFile(cfg.Path)
	case "kafka":
		return NewKafka(cfg.Kafka.Brokers, log)
	case "s3":
		return NewS3(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Prefix)
	}
	return nil, fmt.Errorf("unsupported sink kind: %s", cfg.Kind)
}

// Console writes each message on its own line.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) WriteMessage(topic string, msg []byte) error {
	_, err := fmt.Fprintf(c.w, "%s\n", msg)
	return err
}

func (c *Console) Close() error { return nil }
