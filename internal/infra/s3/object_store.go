package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

const (
	errFailedPutObjectFmt     = "failed to put object %s: %w"
	errFailedGetObjectFmt     = "failed to get object %s: %w"
	errFailedReadObjectFmt    = "failed to read object %s: %w"
	errFailedListObjectsFmt   = "failed to list objects under %s: %w"
	errFailedDeleteObjectsFmt = "failed to delete objects: %w"
	errPartialDeleteFmt       = "failed to delete %d of %d objects, first %s: %s"
)

// Put uploads data under path, replacing any existing object.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf(errFailedPutObjectFmt, path, err)
	}
	return nil
}

// Get downloads the object stored under path.
func (c *Client) Get(ctx context.Context, path string) (*storage.Object, error) {
	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("object %s not found", path))
		}
		return nil, fmt.Errorf(errFailedGetObjectFmt, path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf(errFailedReadObjectFmt, path, err)
	}

	return &storage.Object{
		Path:        path,
		ContentType: aws.StringValue(out.ContentType),
		Data:        data,
		Size:        int64(len(data)),
	}, nil
}

// List returns one page of keys under prefix. The cursor is the S3 continuation token.
func (c *Client) List(ctx context.Context, prefix, cursor string) (*storage.Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucketName),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(int64(c.pageSize)),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	resp, err := c.svc.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf(errFailedListObjectsFmt, prefix, err)
	}

	page := &storage.Page{
		Keys:      make([]string, 0, len(resp.Contents)),
		Truncated: aws.BoolValue(resp.IsTruncated),
		Cursor:    aws.StringValue(resp.NextContinuationToken),
		Modified:  make(map[string]time.Time, len(resp.Contents)),
	}

	for _, obj := range resp.Contents {
		key := aws.StringValue(obj.Key)
		// folder placeholder objects
		if key == prefix || strings.HasSuffix(key, "/") {
			continue
		}
		page.Keys = append(page.Keys, key)
		page.Modified[key] = aws.TimeValue(obj.LastModified)
	}

	return page, nil
}

// Delete removes paths in batches of at most 1000 keys. Missing keys are not errors.
func (c *Client) Delete(ctx context.Context, paths ...string) error {
	for start := 0; start < len(paths); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(paths) {
			end = len(paths)
		}

		objects := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, path := range paths[start:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(path)})
		}

		out, err := c.svc.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucketName),
			Delete: &s3.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf(errFailedDeleteObjectsFmt, err)
		}

		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf(errPartialDeleteFmt, len(out.Errors), len(objects),
				aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
	}

	return nil
}
