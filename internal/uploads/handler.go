// Package uploads issues presigned S3 URLs so large transcript documents can
// be uploaded directly to the bucket before their arrival is posted.
package uploads

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/shared/util"
)

const (
	maxUploadBytes = 20 << 20
	presignExpires = 15 * time.Minute
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"text/plain":      {},
	"text/markdown":   {},
}

// Companies resolves the company a document belongs to.
type Companies interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
}

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest is the part of a presigned request the handler returns.
type PresignedRequest struct {
	URL string
}

type s3Presigner struct {
	client *s3.PresignClient
}

func (p s3Presigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	out, err := p.client.PresignPutObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: out.URL}, nil
}

// Handler issues presigned PUT URLs for transcript documents.
type Handler struct {
	presign   presigner
	companies Companies
	bucket    string
	prefix    string
}

// NewHandler constructs a Handler for bucket. prefix must match the object
// store prefix so returned document refs resolve through the store.
func NewHandler(ctx context.Context, region, bucket, prefix string, companies Companies) (*Handler, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("S3_BUCKET is required for presigned uploads")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return &Handler{
		presign:   s3Presigner{client: s3.NewPresignClient(s3.NewFromConfig(cfg))},
		companies: companies,
		bucket:    bucket,
		prefix:    strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

type presignRequest struct {
	CompanyID   string `json:"companyId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	DocumentRef      string `json:"documentRef"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

// RegisterRoutes attaches the presign route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presignUpload)
}

func (h *Handler) presignUpload(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.CompanyID = strings.TrimSpace(req.CompanyID)
	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.TrimSpace(req.ContentType)

	if req.CompanyID == "" || req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "companyId and fileName are required", nil)
		return
	}
	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit", nil)
		return
	}
	middleware.SetCompanyID(c, req.CompanyID)
	if _, err := h.companies.GetCompany(c.Request.Context(), middleware.OrgIDFromContext(c), req.CompanyID); err != nil {
		respond.FromError(c, err, "failed to load company")
		return
	}

	sanitized, err := util.SanitizeFileName(req.FileName)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fileName", nil)
		return
	}

	ref := DocumentRef(req.CompanyID, uuid.NewString(), sanitized)
	input := presignInput(h.bucket, objectKey(h.prefix, ref), req.ContentType)
	out, err := h.presign.PresignPutObject(c.Request.Context(), input, func(opts *s3.PresignOptions) {
		opts.Expires = presignExpires
	})
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			telemetry.FieldError:     err,
			telemetry.FieldCompanyID: req.CompanyID,
			"bucket":                 h.bucket,
			"key":                    ref,
			"size_bytes":             req.SizeBytes,
			telemetry.FieldRequestID: middleware.RequestIDFromContext(c),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        out.URL,
		DocumentRef:      ref,
		ExpiresInSeconds: int64(presignExpires.Seconds()),
	})
}

// DocumentRef builds the store-relative key for an uploaded transcript, in the
// same namespace the transcript service writes multipart uploads to.
func DocumentRef(companyID, id, fileName string) string {
	return path.Join(util.NamespaceKey(path.Join("transcripts", companyID)), fmt.Sprintf("%s_%s", id, fileName))
}

func objectKey(prefix, ref string) string {
	if prefix == "" {
		return ref
	}
	return prefix + "/" + ref
}

func presignInput(bucket, key, contentType string) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
}
