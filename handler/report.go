package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marcussviniciusa/lyz-sub000/config"
	"github.com/marcussviniciusa/lyz-sub000/middleware"
	"github.com/marcussviniciusa/lyz-sub000/model"
	"github.com/marcussviniciusa/lyz-sub000/service"
)

// BlobStore is the document storage collaborator boundary.
type BlobStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) ([]byte, error)
	PresignedURL(ctx context.Context, objectName string) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// allowedUploads maps accepted extensions to their MIME types. Oversized or
// wrong-type inputs are rejected before any extraction work.
var allowedUploads = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type ReportHandler struct {
	blobs    BlobStore
	store    *service.ReportStore
	maxBytes int64
}

func NewReportHandler(blobs BlobStore, store *service.ReportStore, cfg *config.UploadConfig) *ReportHandler {
	return &ReportHandler{
		blobs:    blobs,
		store:    store,
		maxBytes: cfg.MaxSizeMB << 20,
	}
}

// Upload handles lab report file upload
func (h *ReportHandler) Upload(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedUploads[ext]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF, JPEG and PNG files are allowed"})
		return
	}

	if header.Size > h.maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File exceeds the maximum size of %d MB", h.maxBytes>>20),
		})
		return
	}

	// Sniff the header so a renamed file can't slip through as the wrong type
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	if kind := service.DocumentKind(head[:n]); kind == "unknown" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File content does not match a supported document format"})
		return
	}

	reportID := uuid.New().String()
	objectName := fmt.Sprintf("%s/%s/%s", tenant, reportID, header.Filename)

	if err := h.blobs.Upload(c.Request.Context(), objectName, file, header.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
		return
	}

	fileURL, err := h.blobs.PresignedURL(c.Request.Context(), objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
		return
	}

	report := &model.Report{
		ID:          reportID,
		Filename:    header.Filename,
		Tenant:      tenant,
		ObjectName:  objectName,
		ContentType: contentType,
		FileURL:     fileURL,
		Status:      model.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	h.store.Save(report)

	c.JSON(http.StatusOK, gin.H{
		"id":       reportID,
		"filename": header.Filename,
		"file_url": fileURL,
		"status":   model.StatusPending,
	})
}

// List returns all reports for the current tenant
func (h *ReportHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	reports := h.store.GetByTenant(tenant)

	// List view omits the analysis payload
	result := make([]gin.H, len(reports))
	for i, report := range reports {
		result[i] = gin.H{
			"id":         report.ID,
			"filename":   report.Filename,
			"status":     report.Status,
			"file_url":   report.FileURL,
			"created_at": report.CreatedAt.Format(time.RFC3339),
			"updated_at": report.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"reports": result})
}

// Get returns a single report including its persisted analysis result, so a
// completed analysis can be re-served without re-running the AI call.
func (h *ReportHandler) Get(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	report := h.store.Get(id)
	if report == nil || report.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Delete removes a report and its stored document
func (h *ReportHandler) Delete(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	report := h.store.Get(id)
	if report == nil || report.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}

	if report.ObjectName != "" {
		if err := h.blobs.Delete(c.Request.Context(), report.ObjectName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete stored file: " + err.Error()})
			return
		}
	}
	h.store.Delete(id)

	c.JSON(http.StatusOK, gin.H{"message": "Report deleted"})
}
