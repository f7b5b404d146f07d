// Package audiostore publishes synthesized audio to an S3 bucket.
package audiostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const contentTypeMP3 = "audio/mpeg"

// s3API is the minimal S3 interface required by Client.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client uploads audio objects and derives their public URLs.
type Client struct {
	api     s3API
	bucket  string
	baseURL string
}

type Option func(*Client)

// WithBaseURL serves objects from a custom origin (for example a CDN in front
// of the bucket) instead of the virtual-hosted S3 URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// New creates a Client for bucket.
func New(api s3API, bucket string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("audiostore: api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("audiostore: bucket must not be empty")
	}
	c := &Client{api: api, bucket: bucket}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Put uploads audio under key and returns the object's URL.
func (c *Client) Put(ctx context.Context, key string, audio []byte) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("audiostore: key must not be empty")
	}

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(audio),
		ContentLength: aws.Int64(int64(len(audio))),
		ContentType:   aws.String(contentTypeMP3),
	})
	if err != nil {
		return "", fmt.Errorf("audiostore: PutObject %q: %w", key, err)
	}
	return c.URL(key), nil
}

// URL derives the object URL from the bucket (or base URL) and key without
// contacting S3.
func (c *Client) URL(key string) string {
	if c.baseURL != "" {
		return c.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", c.bucket, key)
}
