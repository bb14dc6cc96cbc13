package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/queue"
	"legal-ai-assistant/internal/vectorstore"
	"legal-ai-assistant/middleware"
	"legal-ai-assistant/models"
	"legal-ai-assistant/services"
	"legal-ai-assistant/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func SetupDocumentRoutes(router *gin.Engine, a *app.App) {
	docs := router.Group("/documents")

	docs.POST("", middleware.RequestSizeLimit(a.Config.MaxRequestSize), func(c *gin.Context) {
		var req models.DocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		res, err := a.Documents.Ingest(ctx, req.Content, req.Metadata)
		if err != nil {
			respondIngestError(c, err)
			return
		}

		c.JSON(http.StatusCreated, models.DocumentResponse{
			Message: res.Message,
			Source:  res.Source,
			Chunks:  res.Chunks,
		})
	})

	docs.POST("/upload", middleware.RequestSizeLimit(a.Config.MaxFileSize), HandleDocumentUpload(a))
	docs.POST("/async", middleware.RequestSizeLimit(a.Config.MaxFileSize), HandleAsyncIngest(a))

	docs.GET("/search", handleSearch(a.Documents))

	docs.GET("/stats", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		stats, err := a.Documents.Stats(ctx)
		if err != nil {
			respondStoreError(c, err, "Failed to compute document stats")
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	docs.GET("/:id", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		hit, found, err := a.Documents.GetByID(ctx, c.Param("id"))
		if err != nil {
			respondStoreError(c, err, "Failed to load document chunk")
			return
		}
		if !found {
			utils.RespondWithNotFound(c, "Document chunk not found")
			return
		}
		c.JSON(http.StatusOK, models.SearchResult{ID: hit.ID, Content: hit.Content, Metadata: hit.Metadata})
	})

	docs.DELETE("", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		if err := a.Documents.Reset(ctx); err != nil {
			respondStoreError(c, err, "Failed to reset document index")
			return
		}
		logger.Warn("Document index reset", "collection", a.Documents.Collection(), "request_id", middleware.GetRequestID(c))
		c.JSON(http.StatusOK, gin.H{"message": "Document index reset", "collection": a.Documents.Collection()})
	})
}

// handleSearch serves similarity search over one DocumentStore.
func handleSearch(store *services.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			utils.RespondWithBadRequest(c, "Query parameter q is required", nil)
			return
		}

		k := 0
		if raw := c.Query("k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 50 {
				utils.RespondWithBadRequest(c, "k must be an integer between 1 and 50", gin.H{"k": raw})
				return
			}
			k = n
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		hits, err := store.Search(ctx, query, k)
		if err != nil {
			respondStoreError(c, err, "Search failed")
			return
		}

		results := make([]models.SearchResult, len(hits))
		for i, h := range hits {
			results[i] = models.SearchResult{ID: h.ID, Content: h.Content, Metadata: h.Metadata, Distance: h.Distance}
		}
		c.JSON(http.StatusOK, models.SearchResponse{Query: query, Results: results, Count: len(results)})
	}
}

// HandleDocumentUpload ingests an uploaded PDF or plain-text file
// synchronously. PDFs are split into articles and each article is ingested
// as its own source.
func HandleDocumentUpload(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "no_file", "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > a.Config.MaxFileSize {
			utils.RespondWithError(c, http.StatusBadRequest, "file_too_large", "File size exceeds maximum limit",
				gin.H{"max_size": a.Config.MaxFileSize})
			return
		}

		content, err := io.ReadAll(io.LimitReader(file, a.Config.MaxFileSize))
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_file", "Cannot read uploaded file", nil)
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		name := filepath.Base(header.Filename)
		constitution, _ := strconv.ParseBool(c.PostForm("constitution"))

		switch strings.ToLower(filepath.Ext(name)) {
		case ".pdf":
			if len(content) < 4 || string(content[:4]) != "%PDF" {
				utils.RespondWithError(c, http.StatusBadRequest, "invalid_pdf", "File does not appear to be a valid PDF", nil)
				return
			}
			extracted, err := a.Extractor.Extract(ctx, content)
			if err != nil {
				utils.RespondWithError(c, http.StatusUnprocessableEntity, "extraction_failed", "Failed to extract text from PDF",
					gin.H{"error": err.Error()})
				return
			}

			articles := services.SplitArticles(extracted.Text)
			res, err := services.IngestArticles(ctx, a.Documents, name, articles, constitution)
			if err != nil {
				respondIngestError(c, err)
				return
			}

			c.JSON(http.StatusCreated, gin.H{
				"message":  fmt.Sprintf("Ingested %d articles from %s", res.Added, name),
				"source":   name,
				"pages":    extracted.Pages,
				"articles": res.Added,
				"skipped":  res.Skipped,
				"chunks":   res.Chunks,
			})

		case ".txt", ".md":
			res, err := a.Documents.Ingest(ctx, string(content), map[string]any{
				"source":    name,
				"file_name": name,
			})
			if err != nil {
				respondIngestError(c, err)
				return
			}
			c.JSON(http.StatusCreated, models.DocumentResponse{Message: res.Message, Source: res.Source, Chunks: res.Chunks})

		default:
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type", "Only PDF and text files are allowed",
				gin.H{"filename": name})
		}
	}
}

// HandleAsyncIngest hands ingestion to the worker. JSON bodies become
// document tasks; multipart PDF uploads are saved under UPLOAD_DIR and become
// PDF tasks.
func HandleAsyncIngest(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Queue == nil {
			utils.RespondWithUnavailable(c, "Async ingestion requires Redis (REDIS_ENABLED=true)")
			return
		}

		var (
			task    *asynq.Task
			err     error
			cleanup = func() {}
		)

		if c.ContentType() == "multipart/form-data" {
			path, saveErr := saveUpload(c, a.Config.UploadDir, a.Config.MaxFileSize)
			if saveErr != nil {
				utils.RespondWithBadRequest(c, saveErr.Error(), nil)
				return
			}
			cleanup = func() { os.Remove(path) }

			constitution, _ := strconv.ParseBool(c.PostForm("constitution"))
			task, err = queue.NewPDFIngestTask(path, constitution)
		} else {
			var req models.DocumentRequest
			if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
				utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": bindErr.Error()})
				return
			}
			if strings.TrimSpace(req.Content) == "" {
				utils.RespondWithBadRequest(c, "Document content is empty", nil)
				return
			}
			task, err = queue.NewDocumentIngestTask(req.Content, req.Metadata)
		}

		var info *asynq.TaskInfo
		if err == nil {
			info, err = a.Queue.EnqueueContext(c.Request.Context(), task)
		}
		if err != nil {
			cleanup()
			logger.Error("Failed to enqueue ingest task", "error", err)
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error", "Failed to enqueue ingestion task", nil)
			return
		}

		c.JSON(http.StatusAccepted, models.AsyncDocumentResponse{
			TaskID:   info.ID,
			Queue:    info.Queue,
			Status:   "pending",
			Enqueued: time.Now().UTC(),
		})
	}
}

// saveUpload streams the "file" form field to dir and returns its path.
func saveUpload(c *gin.Context, dir string, maxSize int64) (string, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return "", errors.New("no file provided")
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return "", errors.New("only PDF files can be ingested asynchronously")
	}

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil || string(magic) != "%PDF" {
		return "", errors.New("file does not appear to be a valid PDF")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".pdf")
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to open destination: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, maxSize)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}

func respondIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyDocument):
		utils.RespondWithBadRequest(c, "Document content is empty", nil)
	case errors.Is(err, vectorstore.ErrDuplicateID):
		utils.RespondWithConflict(c, "A document with this source is already indexed", gin.H{"error": err.Error()})
	case errors.Is(err, vectorstore.ErrInvalidBatch):
		utils.RespondWithBadRequest(c, "Invalid document metadata", gin.H{"error": err.Error()})
	default:
		respondStoreError(c, err, "Failed to ingest document")
	}
}

func respondStoreError(c *gin.Context, err error, message string) {
	if errors.Is(err, services.ErrStoreUnavailable) {
		utils.RespondWithUnavailable(c, "Vector store is not available")
		return
	}
	utils.RespondWithInternalError(c, message, gin.H{"error": err.Error()})
}
