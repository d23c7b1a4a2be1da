// Package archive ships terminal orders to S3-compatible object storage as JSONL.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// Config holds the connection settings of the archive bucket.
type Config struct {
	// Endpoint of an S3-compatible provider (MinIO, R2...). Empty for AWS.
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3Archiver implements ports.OrderArchiver.
type S3Archiver struct {
	s3     *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ ports.OrderArchiver = (*S3Archiver)(nil)

// New builds the S3 client. Static credentials are used when given, otherwise
// the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive.New: bucket is required: %w", domain.ErrValidation)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive.New: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.ForcePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "archive/orders"
	}
	return &S3Archiver{s3: client, bucket: cfg.Bucket, prefix: prefix, now: time.Now}, nil
}

// archivedOrder is the JSONL record of one terminal order.
type archivedOrder struct {
	ID            string    `json:"id"`
	VenueOrderID  string    `json:"venueOrderId,omitempty"`
	MarketID      string    `json:"marketId"`
	Question      string    `json:"question,omitempty"`
	TokenID       string    `json:"tokenId"`
	Side          string    `json:"side"`
	Action        string    `json:"action"`
	Kind          string    `json:"kind"`
	PriceUSD      float64   `json:"priceUsd"`
	SizeUSD       float64   `json:"sizeUsd"`
	FilledUSD     float64   `json:"filledUsd"`
	SignatureType string    `json:"signatureType"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ArchiveOrders writes the batch as one JSONL object under
// <prefix>/YYYY-MM/<unix-nanos>.jsonl.
func (a *S3Archiver) ArchiveOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range orders {
		if err := enc.Encode(archivedOrder{
			ID:            o.ID,
			VenueOrderID:  o.VenueOrderID,
			MarketID:      o.MarketID,
			Question:      o.Question,
			TokenID:       o.TokenID,
			Side:          string(o.Side),
			Action:        string(o.Action),
			Kind:          string(o.Kind),
			PriceUSD:      o.PriceUSD,
			SizeUSD:       o.SizeUSD,
			FilledUSD:     o.FilledUSD,
			SignatureType: o.SignatureType.String(),
			Status:        string(o.Status),
			Reason:        o.Reason,
			CreatedAt:     o.CreatedAt.UTC(),
			UpdatedAt:     o.UpdatedAt.UTC(),
		}); err != nil {
			return fmt.Errorf("archive.ArchiveOrders: encode %s: %w", o.ID, err)
		}
	}

	now := a.now().UTC()
	key := path.Join(a.prefix, now.Format("2006-01"), fmt.Sprintf("%d.jsonl", now.UnixNano()))

	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive.ArchiveOrders: put %s: %v: %w", key, err, domain.ErrProviderUnavailable)
	}
	return nil
}

// normaliseEndpoint prepends https:// when the endpoint has no scheme.
func normaliseEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
