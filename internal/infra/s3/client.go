package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const (
	emptyAWSSessionToken = ""
	defaultS3Region      = "us-east-1"
	defaultPageSize      = 1000
	deleteBatchSize      = 1000

	errFailedCreateAWSSessionFmt = "failed to create AWS session: %w"
	errFailedCreateBucketFmt     = "failed to create bucket: %w"
	errFailedWaitBucketExistsFmt = "failed to wait for bucket to exist: %w"
)

// Config holds the settings needed to reach the bucket.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint is optional and selects an S3 compatible service.
	Endpoint string
	PageSize int
}

// Client represents the S3 client wrapper
type Client struct {
	bucketName string
	pageSize   int
	svc        s3iface.S3API
}

// NewClient creates a new S3 client instance
func NewClient(cfg Config) (*Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			emptyAWSSessionToken,
		),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf(errFailedCreateAWSSessionFmt, err)
	}

	return newClientWithAPI(s3.New(sess), cfg.Bucket, cfg.PageSize), nil
}

func newClientWithAPI(svc s3iface.S3API, bucket string, pageSize int) *Client {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Client{
		bucketName: bucket,
		pageSize:   pageSize,
		svc:        svc,
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context, region string) error {
	_, err := c.svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucketName),
	})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(c.bucketName),
	}
	if region != "" && region != defaultS3Region {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(region),
		}
	}

	if _, err := c.svc.CreateBucketWithContext(ctx, input); err != nil {
		return fmt.Errorf(errFailedCreateBucketFmt, err)
	}

	if err := c.svc.WaitUntilBucketExistsWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucketName),
	}); err != nil {
		return fmt.Errorf(errFailedWaitBucketExistsFmt, err)
	}

	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
