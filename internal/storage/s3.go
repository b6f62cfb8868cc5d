package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloo-solutions/researchq/internal/domain"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client exports archived research records to S3-compatible storage.
type S3Client struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	downloadURLExpiry time.Duration
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		downloadURLExpiry: 1 * time.Hour,
	}, nil
}

// RecordKey is the object key of an exported record.
func RecordKey(teamID, recordID string) string {
	return "records/" + url.PathEscape(teamID) + "/" + url.PathEscape(recordID) + ".json"
}

// RecordDocument is the JSON shape of an exported record.
type RecordDocument struct {
	ID                    string           `json:"id"`
	TeamID                string           `json:"teamId"`
	UserID                string           `json:"userId"`
	DocumentIDs           []string         `json:"documentIds"`
	UserSearchQuery       string           `json:"userSearchQuery"`
	OverallQuery          string           `json:"overallQuery"`
	SimilarityScore       float64          `json:"similarityScore"`
	SequentialQuery       bool             `json:"sequentialQuery"`
	EnhancedSearch        bool             `json:"enhancedSearch"`
	Status                string           `json:"status"`
	IndividualFindings    []domain.Finding `json:"individualFindings"`
	UnanalyzedDocumentIDs []string         `json:"unanalyzedDocumentIds"`
	OverallSummary        string           `json:"overallSummary"`
	CreatedAt             time.Time        `json:"createdAt"`
	ArchivedAt            time.Time        `json:"archivedAt"`
}

func NewRecordDocument(rec *domain.ResearchRecord) RecordDocument {
	findings := rec.IndividualFindings
	if findings == nil {
		findings = []domain.Finding{}
	}
	unanalyzed := rec.UnanalyzedDocumentIDs
	if unanalyzed == nil {
		unanalyzed = []string{}
	}
	return RecordDocument{
		ID:                    rec.ID,
		TeamID:                rec.TeamID,
		UserID:                rec.UserID,
		DocumentIDs:           rec.DocumentIDs,
		UserSearchQuery:       rec.UserSearchQuery,
		OverallQuery:          rec.OverallQuery,
		SimilarityScore:       rec.SimilarityScore,
		SequentialQuery:       rec.SequentialQuery,
		EnhancedSearch:        rec.EnhancedSearch,
		Status:                string(rec.Status),
		IndividualFindings:    findings,
		UnanalyzedDocumentIDs: unanalyzed,
		OverallSummary:        rec.OverallSummary,
		CreatedAt:             rec.CreatedAt,
		ArchivedAt:            rec.ArchivedAt,
	}
}

// ExportRecord writes the record as JSON under RecordKey. Re-exporting the
// same record overwrites the object.
func (c *S3Client) ExportRecord(ctx context.Context, rec *domain.ResearchRecord) error {
	body, err := json.MarshalIndent(NewRecordDocument(rec), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(RecordKey(rec.TeamID, rec.ID)),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// ExportURL returns a presigned download URL for an exported record.
func (c *S3Client) ExportURL(ctx context.Context, rec *domain.ResearchRecord) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(RecordKey(rec.TeamID, rec.ID)),
	}

	presignedReq, err := c.presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = c.downloadURLExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}

	return presignedReq.URL, nil
}

// ReadRecord fetches an exported record back from storage.
func (c *S3Client) ReadRecord(ctx context.Context, teamID, recordID string) (*RecordDocument, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(RecordKey(teamID, recordID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	var doc RecordDocument
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &doc, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
