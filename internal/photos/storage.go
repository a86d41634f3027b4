package photos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cavelog/cavelog/internal/config"
)

// PresignedPost is a browser form upload target.
type PresignedPost struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// Storage is the object store holding photo and avatar files.
type Storage interface {
	PresignPost(ctx context.Context, key, contentType string, maxBytes int64, ttl time.Duration) (*PresignedPost, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// S3Storage stores objects in an S3 compatible bucket.
type S3Storage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	acl       string
	endpoint  string
	region    string
	domain    string
}

// NewS3Storage builds an S3 client from cfg. A custom endpoint switches to
// path style addressing.
func NewS3Storage(ctx context.Context, cfg config.S3Config) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("photo storage: bucket not configured")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, errLoad := awsconfig.LoadDefaultConfig(ctx, opts...)
	if errLoad != nil {
		return nil, fmt.Errorf("photo storage: load aws config: %w", errLoad)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.EndpointURL), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Storage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		acl:       cfg.DefaultACL,
		endpoint:  endpoint,
		region:    awsCfg.Region,
		domain:    strings.Trim(strings.TrimSpace(cfg.CustomDomain), "/"),
	}, nil
}

// PresignPost signs a POST policy limited to maxBytes and an image content type.
func (s *S3Storage) PresignPost(ctx context.Context, key, contentType string, maxBytes int64, ttl time.Duration) (*PresignedPost, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	req, errPresign := s.presigner.PresignPostObject(ctx, input, func(o *s3.PresignPostOptions) {
		o.Expires = ttl
		o.Conditions = []interface{}{
			[]interface{}{"content-length-range", 1, maxBytes},
			map[string]string{"acl": s.acl},
			map[string]string{"Content-Type": contentType},
		}
	})
	if errPresign != nil {
		return nil, fmt.Errorf("photo storage: presign post: %w", errPresign)
	}
	fields := make(map[string]string, len(req.Values)+2)
	for k, v := range req.Values {
		fields[k] = v
	}
	fields["acl"] = s.acl
	fields["Content-Type"] = contentType
	return &PresignedPost{URL: req.URL, Fields: fields}, nil
}

// Open returns the object body and its size.
func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, errGet := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if errGet != nil {
		return nil, 0, fmt.Errorf("photo storage: get %s: %w", key, errGet)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// Put uploads body under key with the default ACL.
func (s *S3Storage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, errPut := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACL(s.acl),
	})
	if errPut != nil {
		return fmt.Errorf("photo storage: put %s: %w", key, errPut)
	}
	return nil
}

// Delete removes key. Missing objects are not an error.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, errDelete := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if errDelete != nil {
		return fmt.Errorf("photo storage: delete %s: %w", key, errDelete)
	}
	return nil
}

// URL returns the public URL of key.
func (s *S3Storage) URL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case s.domain != "":
		return "https://" + s.domain + "/" + escaped
	case s.endpoint != "":
		return s.endpoint + "/" + s.bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
	}
}
