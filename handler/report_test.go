package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcussviniciusa/lyz-sub000/config"
	"github.com/marcussviniciusa/lyz-sub000/model"
	"github.com/marcussviniciusa/lyz-sub000/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubBlobStore records uploads in memory
type stubBlobStore struct {
	objects   map[string][]byte
	uploadErr error
	deleteErr error
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{objects: make(map[string][]byte)}
}

func (s *stubBlobStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.objects[objectName] = data
	return nil
}

func (s *stubBlobStore) Download(ctx context.Context, objectName string) ([]byte, error) {
	data, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return data, nil
}

func (s *stubBlobStore) PresignedURL(ctx context.Context, objectName string) (string, error) {
	return "http://blob.local/" + objectName, nil
}

func (s *stubBlobStore) Delete(ctx context.Context, objectName string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, objectName)
	return nil
}

func newTestReportStore() *service.ReportStore {
	return service.NewReportStore(&config.StoreConfig{MaxReports: 100, MaxJobs: 100})
}

func newTestReportHandler(blobs BlobStore, store *service.ReportStore) *ReportHandler {
	return NewReportHandler(blobs, store, &config.UploadConfig{MaxSizeMB: 1})
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(content)
	w.Close()
	return body, w.FormDataContentType()
}

func TestReportHandlerUpload(t *testing.T) {
	blobs := newStubBlobStore()
	store := newTestReportStore()
	handler := newTestReportHandler(blobs, store)

	router := gin.New()
	router.POST("/upload", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Upload(c)
	})

	content := append([]byte("%PDF-1.4 "), make([]byte, 256)...)
	body, contentType := multipartUpload(t, "report.pdf", content)

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	id, _ := response["id"].(string)
	if id == "" {
		t.Fatal("Expected report id in response")
	}
	if response["status"] != model.StatusPending {
		t.Errorf("Expected pending status, got %v", response["status"])
	}

	report := store.Get(id)
	if report == nil {
		t.Fatal("Expected report to be saved")
	}
	if report.Tenant != "tenant1" {
		t.Errorf("Expected tenant1, got %s", report.Tenant)
	}
	if _, ok := blobs.objects[report.ObjectName]; !ok {
		t.Error("Expected document stored in blob store")
	}
}

func TestReportHandlerUploadNoFile(t *testing.T) {
	handler := newTestReportHandler(newStubBlobStore(), newTestReportStore())

	router := gin.New()
	router.POST("/upload", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Upload(c)
	})

	req := httptest.NewRequest("POST", "/upload", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["error"] != "No file provided" {
		t.Errorf("Expected 'No file provided' error, got '%s'", response["error"])
	}
}

func TestReportHandlerUploadInvalidExtension(t *testing.T) {
	handler := newTestReportHandler(newStubBlobStore(), newTestReportStore())

	router := gin.New()
	router.POST("/upload", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Upload(c)
	})

	body, contentType := multipartUpload(t, "report.txt", []byte("plain text content"))

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestReportHandlerUploadMismatchedContent(t *testing.T) {
	handler := newTestReportHandler(newStubBlobStore(), newTestReportStore())

	router := gin.New()
	router.POST("/upload", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Upload(c)
	})

	// .pdf extension, but the bytes are not a PDF
	body, contentType := multipartUpload(t, "renamed.pdf", []byte("definitely not a pdf file body"))

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for mismatched content, got %d", w.Code)
	}
}

func TestReportHandlerList(t *testing.T) {
	store := newTestReportStore()
	store.Save(&model.Report{ID: "r1", Tenant: "tenant1", CreatedAt: time.Now()})
	store.Save(&model.Report{ID: "r2", Tenant: "tenant1", CreatedAt: time.Now()})
	store.Save(&model.Report{ID: "r3", Tenant: "tenant2", CreatedAt: time.Now()})

	handler := newTestReportHandler(newStubBlobStore(), store)

	router := gin.New()
	router.GET("/reports", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.List(c)
	})

	req := httptest.NewRequest("GET", "/reports", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string][]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response["reports"]) != 2 {
		t.Errorf("Expected 2 reports for tenant1, got %d", len(response["reports"]))
	}
}

func TestReportHandlerGet(t *testing.T) {
	store := newTestReportStore()
	store.Save(&model.Report{
		ID:     "get-test",
		Tenant: "tenant1",
		Status: model.StatusCompleted,
		AnalysisResult: &model.CanonicalResult{
			Summary:         "stored summary",
			Markers:         []model.Marker{},
			Recommendations: []string{"recheck in six months"},
		},
		CreatedAt: time.Now(),
	})

	handler := newTestReportHandler(newStubBlobStore(), store)

	tests := []struct {
		name           string
		id             string
		tenant         string
		expectedStatus int
	}{
		{
			name:           "valid get",
			id:             "get-test",
			tenant:         "tenant1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong tenant",
			id:             "get-test",
			tenant:         "tenant2",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "non-existent",
			id:             "missing",
			tenant:         "tenant1",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/reports/:id", func(c *gin.Context) {
				c.Set("tenant", tt.tenant)
				handler.Get(c)
			})

			req := httptest.NewRequest("GET", "/reports/"+tt.id, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestReportHandlerGetIncludesResult(t *testing.T) {
	store := newTestReportStore()
	store.Save(&model.Report{
		ID:     "r1",
		Tenant: "tenant1",
		Status: model.StatusCompleted,
		AnalysisResult: &model.CanonicalResult{
			Summary:         "stored summary",
			Markers:         []model.Marker{},
			Recommendations: []string{"recheck in six months"},
		},
	})

	handler := newTestReportHandler(newStubBlobStore(), store)

	router := gin.New()
	router.GET("/reports/:id", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Get(c)
	})

	req := httptest.NewRequest("GET", "/reports/r1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	var report model.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if report.AnalysisResult == nil || report.AnalysisResult.Summary != "stored summary" {
		t.Errorf("Expected persisted analysis result, got %+v", report.AnalysisResult)
	}
}

func TestReportHandlerDelete(t *testing.T) {
	blobs := newStubBlobStore()
	blobs.objects["tenant1/r1/report.pdf"] = []byte("data")

	store := newTestReportStore()
	store.Save(&model.Report{
		ID:         "r1",
		Tenant:     "tenant1",
		ObjectName: "tenant1/r1/report.pdf",
	})

	handler := newTestReportHandler(blobs, store)

	router := gin.New()
	router.DELETE("/reports/:id", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Delete(c)
	})

	req := httptest.NewRequest("DELETE", "/reports/r1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if store.Get("r1") != nil {
		t.Error("Expected report removed from store")
	}
	if _, ok := blobs.objects["tenant1/r1/report.pdf"]; ok {
		t.Error("Expected stored document removed")
	}
}

func TestReportHandlerDeleteWrongTenant(t *testing.T) {
	store := newTestReportStore()
	store.Save(&model.Report{ID: "r1", Tenant: "tenant1"})

	handler := newTestReportHandler(newStubBlobStore(), store)

	router := gin.New()
	router.DELETE("/reports/:id", func(c *gin.Context) {
		c.Set("tenant", "tenant2")
		handler.Delete(c)
	})

	req := httptest.NewRequest("DELETE", "/reports/r1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for wrong tenant, got %d", w.Code)
	}
	if store.Get("r1") == nil {
		t.Error("Expected report to survive a cross-tenant delete")
	}
}
