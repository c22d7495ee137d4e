package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Storage implements Storage on the AWS SDK. It is the driver of choice for
// Cloudflare R2 (region "auto", account endpoint) and AWS S3 itself.
type S3Storage struct {
	client     *s3.Client
	presign    *s3.PresignClient
	uploader   *manager.Uploader
	bucket     string
	publicBase string
}

// NewS3Storage builds an S3 client with static credentials and an optional endpoint override.
func NewS3Storage(ctx context.Context, cfg StoreConfig) (*S3Storage, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	s := &S3Storage{
		client:     client,
		presign:    s3.NewPresignClient(client),
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		publicBase: publicBaseFor(StoreConfig{Endpoint: endpoint, Bucket: cfg.Bucket, PublicBase: cfg.PublicBase}),
	}

	if cfg.EnsureBucket {
		if err := s.ensureBucket(ctx, cfg.Region); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *S3Storage) ensureBucket(ctx context.Context, region string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if region != "" && region != "us-east-1" && region != "auto" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Upload goes through the transfer manager, which handles unknown sizes and
// non-seekable bodies by splitting them into parts.
func (s *S3Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		return s3Error("put object", key, err)
	}
	return nil
}

func (s *S3Storage) Get(ctx context.Context, key string, rng *ByteRange) (*Object, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		in.Range = aws.String(rng.Header())
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, s3Error("get object", key, err)
	}

	contentRange := aws.ToString(out.ContentRange)
	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}

	return &Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         sizeFromContentRange(contentRange, length),
			ContentType:  aws.ToString(out.ContentType),
			ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
			LastModified: aws.ToTime(out.LastModified),
		},
		Length:       length,
		ContentRange: contentRange,
		Body:         out.Body,
	}, nil
}

func (s *S3Storage) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error("head object", key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3Error("delete object", key, err)
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var out []ObjectInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s3Error("list objects", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// PresignPut signs the content type into the URL; the uploader must send the same Content-Type.
func (s *S3Storage) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", s3Error("presign put", key, err)
	}
	return req.URL, nil
}

func (s *S3Storage) PublicURL(key string) string {
	return s.publicBase + "/" + key
}

func s3Error(op, key string, err error) error {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
		apiErr    smithy.APIError
		respErr   *awshttp.ResponseError
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return newError(op, key, KindNotFound, err)
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return newError(op, key, KindNotFound, err)
		case "AccessDenied", "Forbidden", "SignatureDoesNotMatch", "InvalidAccessKeyId":
			return newError(op, key, KindAccessDenied, err)
		case "InvalidRange":
			return newError(op, key, KindInvalidRange, err)
		}
	}
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return newError(op, key, KindNotFound, err)
		case http.StatusForbidden:
			return newError(op, key, KindAccessDenied, err)
		case http.StatusRequestedRangeNotSatisfiable:
			return newError(op, key, KindInvalidRange, err)
		}
	}
	if isNetwork(err) {
		return newError(op, key, KindNetwork, err)
	}
	return newError(op, key, KindUnknown, err)
}
