// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/satmarket/satmarket-backend/internal/config"
)

// evidence uploads are capped per file and restricted to formats support
// staff can actually review
const (
	evidenceMaxSize = 10 * 1024 * 1024
	presignTTL      = 15 * time.Minute
)

var evidenceAllowedTypes = []string{".jpg", ".jpeg", ".png", ".gif", ".pdf"}

// StorageService stores dispute evidence in S3, keyed under the dispute the
// attachment belongs to. Evidence objects are always private; reads go
// through short-lived presigned URLs.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
}

type EvidenceUpload struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	if cfg.AWS.AccessKeyID == "" {
		// No credentials: keys are still issued so the dispute thread keeps
		// its shape in local development, uploads are just not persisted.
		return &StorageService{config: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
	}, nil
}

// UploadEvidence validates and stores one attachment for a dispute message
// and returns the object key to record on the message.
func (s *StorageService) UploadEvidence(disputeID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*EvidenceUpload, error) {
	if header.Size > evidenceMaxSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum %d bytes", header.Size, evidenceMaxSize)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, t := range evidenceAllowedTypes {
		if ext == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("file type %s is not allowed", ext)
	}

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	key := s.evidenceKey(disputeID, ext)
	contentType := header.Header.Get("Content-Type")

	if s.s3Client == nil {
		logrus.WithFields(logrus.Fields{
			"dispute_id": disputeID,
			"key":        key,
			"size":       len(fileBytes),
		}).Info("Evidence upload skipped (S3 not configured)")
		return &EvidenceUpload{Key: key, Size: int64(len(fileBytes)), MimeType: contentType}, nil
	}

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload evidence to S3: %w", err)
	}

	return &EvidenceUpload{
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}, nil
}

// EvidenceURL returns a short-lived presigned URL for a stored attachment.
func (s *StorageService) EvidenceURL(key string) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(presignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign evidence URL: %w", err)
	}
	return url, nil
}

// DeleteEvidence removes a stored attachment, used when a message create
// fails after its uploads succeeded.
func (s *StorageService) DeleteEvidence(key string) error {
	if s.s3Client == nil {
		return nil
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete evidence from S3: %w", err)
	}
	return nil
}

func (s *StorageService) evidenceKey(disputeID uuid.UUID, ext string) string {
	id := uuid.New()
	timestamp := time.Now().UTC().Format("20060102")
	return fmt.Sprintf("evidence/%s/%s_%s%s", disputeID, timestamp, id.String()[:8], ext)
}
