package imagesvc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig // mockable

	putObject = func(ctx context.Context, client *s3.Client, in *s3.PutObjectInput) error { // mockable
		_, err := client.PutObject(ctx, in)
		return err
	}
)

type s3Service struct {
	client  *s3.Client
	bucket  string
	baseURL string
	maxSize int
}

var _ core.ImageService = (*s3Service)(nil)

// NewS3Service uploads the images to an S3 compatible bucket (AWS, MinIO...).
func NewS3Service(ctx context.Context, conf *core.Config) (core.ImageService, error) {
	ic := conf.Images
	opts := []func(*config.LoadOptions) error{config.WithRegion(ic.S3Region)}
	if ic.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ic.S3AccessKey, ic.S3SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ic.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(ic.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Service{
		client:  client,
		bucket:  ic.S3Bucket,
		baseURL: strings.TrimRight(ic.PublicBaseURL, "/"),
		maxSize: ic.MaxSize,
	}, nil
}

func (svc *s3Service) UploadImage(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := Normalize(r, svc.maxSize)
	if err != nil {
		return "", err
	}

	err = putObject(ctx, svc.client, &s3.PutObjectInput{
		Bucket:        aws.String(svc.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", errors.Wrap(err, "uploading image")
	}
	return svc.baseURL + "/" + name, nil
}
