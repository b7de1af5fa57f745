package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/care-auth-api/internal/config"
	"github.com/care-auth-api/internal/domain"
)

// Archive writes purged verification records to S3 before they are deleted
// from the table, keeping an audit trail beyond the retention window.
type Archive struct {
	client *s3.Client
	bucket string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(cfg *config.Config) *s3.Client {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}

	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		panic("failed to load AWS config for S3: " + err.Error())
	}

	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// NewArchive creates an Archive over the given S3 client and bucket.
func NewArchive(client *s3.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// archivedRecord is the stored shape. The ciphertext is kept as-is; plaintext
// codes never reach the archive.
type archivedRecord struct {
	domain.OTPRecord
	Code  string `json:"code"`
	Scope string `json:"scope"`
}

// Put stores one record as a JSON object under created-date/otp-id.
func (a *Archive) Put(ctx context.Context, rec *domain.OTPRecord) error {
	body, err := json.Marshal(archivedRecord{OTPRecord: *rec, Code: rec.Code, Scope: rec.Scope})
	if err != nil {
		return fmt.Errorf("marshal archived record: %w", err)
	}
	key := fmt.Sprintf("otps/%s/%s.json", rec.CreatedAt.UTC().Format("2006-01-02"), rec.OTPID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
