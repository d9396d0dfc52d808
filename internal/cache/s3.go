package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// markerObject exists in every cache so empty caches are still listed.
const markerObject = ".cache"

// S3API is the subset of *s3.Client used by S3Storage.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Options configures the client built by NewS3Client.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds a client for AWS S3 or an S3 compatible store such as
// MinIO. Static credentials are used when AccessKey is set.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.BaseEndpoint != "" {
			so.BaseEndpoint = aws.String(o.BaseEndpoint)
			so.UsePathStyle = true
		}
	}), nil
}

// S3Storage keeps each cache under <prefix><name>/ in a bucket, one object
// per snapshot. Object names are the base64url request keys.
type S3Storage struct {
	api    S3API
	bucket string
	prefix string
}

func NewS3Storage(api S3API, bucket, prefix string) *S3Storage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Storage{api: api, bucket: bucket, prefix: prefix}
}

func (s *S3Storage) cachePrefix(name string) string {
	return s.prefix + name + "/"
}

func (s *S3Storage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("s3: invalid cache name %q", name)
	}
	c := &s3Cache{storage: s, prefix: s.cachePrefix(name)}
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(c.prefix + markerObject),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: open cache %s: %w", name, err)
	}
	return c, nil
}

func (s *S3Storage) Names(ctx context.Context) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list caches: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *S3Storage) Delete(ctx context.Context, name string) (bool, error) {
	found := false
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.cachePrefix(name)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return found, fmt.Errorf("s3: delete cache %s: %w", name, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		found = true

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return found, fmt.Errorf("s3: delete cache %s: %w", name, err)
		}
	}
	return found, nil
}

type s3Cache struct {
	storage *S3Storage
	prefix  string
}

func encodeObjectName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeObjectName(name string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *s3Cache) Get(ctx context.Context, key string) (*Snapshot, error) {
	out, err := c.storage.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.storage.bucket),
		Key:    aws.String(c.prefix + encodeObjectName(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("s3: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", key, err)
	}
	return unmarshalSnapshot(data)
}

func (c *s3Cache) Put(ctx context.Context, s *Snapshot) error {
	data, err := marshalSnapshot(s)
	if err != nil {
		return err
	}
	_, err = c.storage.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.storage.bucket),
		Key:         aws.String(c.prefix + encodeObjectName(s.Key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", s.Key, err)
	}
	return nil
}

func (c *s3Cache) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(c.storage.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.storage.bucket),
		Prefix: aws.String(c.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: keys: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), c.prefix)
			if name == markerObject {
				continue
			}
			key, err := decodeObjectName(name)
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}
