package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 buffers messages per topic and uploads one JSON-lines object per topic
// on Close.
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time

	buffers map[string]*bytes.Buffer
}

func NewS3(ctx context.Context, region, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 sink: empty bucket")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3Client(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3Client(client PutObjectAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, now: time.Now, buffers: map[string]*bytes.Buffer{}}
}

func (s *S3) WriteMessage(topic string, msg []byte) error {
	b, ok := s.buffers[topic]
	if !ok {
		b = &bytes.Buffer{}
		s.buffers[topic] = b
	}
	b.Write(msg)
	return b.WriteByte('\n')
}

func (s *S3) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	topics := make([]string, 0, len(s.buffers))
	for t := range s.buffers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	stamp := s.now().UTC().Format("20060102T150405Z")
	for _, t := range topics {
		key := path.Join(s.prefix, t, stamp+".jsonl")
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(s.buffers[t].Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return fmt.Errorf("unable to upload %s to S3: %w", key, err)
		}
		delete(s.buffers, t)
	}
	return nil
}
