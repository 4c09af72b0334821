// Package s3 replicates partitions to an S3 bucket. Blob ids are object keys.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

const contentType = "text/csv"

// API is the subset of the S3 client used by Store.
type API interface {
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Store is a replication.BlobStore over one bucket. The parent is a key prefix.
type Store struct {
	client API
	bucket string
}

// New loads the default AWS configuration chain and returns a Store for
// bucket. A non-empty endpoint selects an S3-compatible service with
// path-style addressing.
func New(ctx context.Context, bucket, endpoint string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, bucket), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// List returns the key parent/name when an object with exactly that key exists.
func (s *Store) List(ctx context.Context, parent, name string) ([]string, error) {
	key := objectKey(parent, name)
	out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(10),
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, key, err)
	}
	var ids []string
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			ids = append(ids, key)
		}
	}
	return ids, nil
}

// Create uploads a new object and returns its key.
func (s *Store) Create(ctx context.Context, parent, name string, content []byte) (string, error) {
	key := objectKey(parent, name)
	if err := s.put(ctx, key, content); err != nil {
		return "", err
	}
	return key, nil
}

// Update overwrites the object at key id.
func (s *Store) Update(ctx context.Context, id string, content []byte) error {
	return s.put(ctx, id, content)
}

func (s *Store) put(ctx context.Context, key string, content []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func objectKey(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
