package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/paperhub/backend-go/internal/config"
	"github.com/paperhub/backend-go/internal/kafka"
	"github.com/paperhub/backend-go/internal/knowledge"
	"github.com/paperhub/backend-go/internal/logger"
	"github.com/paperhub/backend-go/internal/metrics"
	"github.com/paperhub/backend-go/internal/models"
	"github.com/paperhub/backend-go/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UploadProgress 入库过程的进度通知
type UploadProgress struct {
	Stage    string  `json:"stage"` // parsing | storing | chunking | embedding | indexing | done
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// ProgressSink 进度回调，nil时不通知
type ProgressSink func(progress UploadProgress)

// DocumentStatus 单个文档的分块/向量计数，用于诊断
type DocumentStatus struct {
	DocumentID  uint   `json:"document_id"`
	Name        string `json:"name"`
	ChunkCount  int64  `json:"chunk_count"`
	VectorCount int64  `json:"vector_count"`
}

// DocumentService 文档入库服务
// 上传：解析→对象存储→建档→分块→分批嵌入→双路索引
type DocumentService struct {
	db             *gorm.DB
	store          *storage.ObjectStore
	parsers        *knowledge.ParserRegistry
	chunker        *knowledge.Chunker
	embedder       knowledge.Embedder
	indexer        knowledge.FulltextIndexer
	vectors        knowledge.VectorStore
	cache          *RedisChunkCache
	embedBatchSize int
}

// NewDocumentService 创建文档服务
func NewDocumentService(db *gorm.DB, store *storage.ObjectStore, embedder knowledge.Embedder, indexer knowledge.FulltextIndexer, vectors knowledge.VectorStore, cache *RedisChunkCache) *DocumentService {
	chunkSize, chunkOverlap, batchSize := 800, 120, 10
	if cfg := config.GetAppConfig(); cfg != nil {
		if cfg.Retrieval.ChunkSize > 0 {
			chunkSize = cfg.Retrieval.ChunkSize
		}
		if cfg.Retrieval.ChunkOverlap >= 0 {
			chunkOverlap = cfg.Retrieval.ChunkOverlap
		}
		if cfg.Retrieval.EmbedBatchSize > 0 {
			batchSize = cfg.Retrieval.EmbedBatchSize
		}
	}

	return &DocumentService{
		db:             db,
		store:          store,
		parsers:        knowledge.NewParserRegistry(),
		chunker:        knowledge.NewChunker(chunkSize, chunkOverlap),
		embedder:       embedder,
		indexer:        indexer,
		vectors:        vectors,
		cache:          cache,
		embedBatchSize: batchSize,
	}
}

// Upload 处理一次文件上传，返回入库后的文档
func (s *DocumentService) Upload(ctx context.Context, userID uint, filename string, size int64, reader io.Reader, progress ProgressSink) (*models.Document, error) {
	if err := s.validateUpload(filename, size); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	s.notify(progress, UploadProgress{Stage: "parsing", Message: "Extracting text..."})
	text, err := s.parsers.Parse(bytes.NewReader(content), filename)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document contains no extractable text")
	}

	s.notify(progress, UploadProgress{Stage: "storing", Message: "Storing raw file..."})
	var storageURL string
	if s.store != nil && s.store.Ready() {
		key := s.store.ObjectKey(userID, filename)
		storageURL, err = s.store.Upload(ctx, key, bytes.NewReader(content), int64(len(content)), contentTypeFor(filename))
		if err != nil {
			return nil, fmt.Errorf("failed to store raw file: %w", err)
		}
	}

	doc := &models.Document{
		Name:        filename,
		Size:        size,
		TextContent: text,
		StorageURL:  storageURL,
		UserID:      userID,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.notify(progress, UploadProgress{Stage: "chunking", Message: "Splitting text..."})
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document produced no chunks")
	}

	records := make([]models.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		records[i] = models.DocumentChunk{
			DocumentID: doc.DocumentID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			CreatedAt:  time.Now(),
		}
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to create chunks: %w", err)
	}

	// 分批嵌入+索引，每批之后上报小数进度
	// 单批嵌入失败不中断入库，缺失的向量交给Repair补齐
	for start := 0; start < len(records); start += s.embedBatchSize {
		end := start + s.embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := s.ingestBatch(ctx, doc, batch); err != nil {
			logger.Warn("batch ingestion incomplete",
				zap.Uint("document_id", doc.DocumentID),
				zap.Int("batch_start", start),
				zap.Error(err))
		}

		s.notify(progress, UploadProgress{
			Stage:    "embedding",
			Progress: float64(end) / float64(len(records)),
		})
	}

	s.notify(progress, UploadProgress{Stage: "done", Progress: 1})

	metrics.DocumentsIngested.Inc()
	metrics.ChunksIndexed.Add(float64(len(records)))

	if producer := kafka.GetProducer(); producer != nil {
		if err := producer.SendDocumentEvent(&kafka.DocumentEvent{
			Type:       "document.ingested",
			DocumentID: doc.DocumentID,
			UserID:     userID,
			Name:       doc.Name,
			ChunkCount: len(records),
		}); err != nil {
			logger.Warn("failed to publish ingest event", zap.Error(err))
		}
	}

	logger.Info("document ingested",
		zap.Uint("document_id", doc.DocumentID),
		zap.Uint("user_id", userID),
		zap.Int("chunks", len(records)))

	return doc, nil
}

// ingestBatch 对一批分块做嵌入、向量入库和全文索引
func (s *DocumentService) ingestBatch(ctx context.Context, doc *models.Document, batch []models.DocumentChunk) error {
	texts := make([]string, len(batch))
	for i, record := range batch {
		texts[i] = record.Text
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		embeddings = nil
	}

	var firstErr error
	for i, record := range batch {
		if embeddings != nil && i < len(embeddings) {
			if err := s.storeVector(ctx, doc, record, embeddings[i]); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		if err := s.indexer.IndexChunk(ctx, knowledge.FulltextChunk{
			ChunkID:    record.ChunkID,
			DocumentID: doc.DocumentID,
			UserID:     doc.UserID,
			Content:    record.Text,
			ChunkIndex: record.ChunkIndex,
			FileName:   doc.Name,
			CreatedAt:  record.CreatedAt,
		}); err != nil && firstErr == nil {
			firstErr = err
		}

		if s.cache != nil {
			_ = s.cache.Store(ctx, doc.UserID, CachedChunk{
				ChunkID:      record.ChunkID,
				DocumentID:   doc.DocumentID,
				DocumentName: doc.Name,
				Text:         record.Text,
			})
		}
	}

	if embeddings == nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("embedding batch failed")
		}
	}
	return firstErr
}

func (s *DocumentService) storeVector(ctx context.Context, doc *models.Document, record models.DocumentChunk, embedding []float32) error {
	encoded, err := json.Marshal(embedding)
	if err != nil {
		return err
	}

	vector := models.DocumentVector{
		DocumentID: doc.DocumentID,
		ChunkID:    record.ChunkID,
		Embedding:  string(encoded),
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&vector).Error; err != nil {
		return fmt.Errorf("failed to store vector row: %w", err)
	}

	if err := s.vectors.UpsertChunk(ctx, knowledge.VectorChunk{
		ChunkID:    record.ChunkID,
		DocumentID: doc.DocumentID,
		UserID:     doc.UserID,
		Text:       record.Text,
		Embedding:  embedding,
	}); err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	return nil
}

// Delete 删除文档及其全部派生数据
func (s *DocumentService) Delete(ctx context.Context, userID uint, documentID uint) error {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("document not found")
		}
		return fmt.Errorf("failed to load document: %w", err)
	}

	var chunkIDs []uint
	if err := s.db.WithContext(ctx).
		Model(&models.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Pluck("chunk_id", &chunkIDs).Error; err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	if err := s.vectors.DeleteDocument(ctx, userID, documentID); err != nil {
		logger.Warn("failed to delete vectors", zap.Uint("document_id", documentID), zap.Error(err))
	}
	if err := s.indexer.RemoveDocument(ctx, userID, documentID); err != nil {
		logger.Warn("failed to remove fulltext entries", zap.Uint("document_id", documentID), zap.Error(err))
	}

	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.DocumentVector{}).Error; err != nil {
		return fmt.Errorf("failed to delete vector rows: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("failed to delete chunk rows: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateChunks(ctx, userID, chunkIDs)
	}

	if s.store != nil && s.store.Ready() && doc.StorageURL != "" {
		if key := objectKeyFromURL(doc.StorageURL); key != "" {
			if err := s.store.Remove(ctx, key); err != nil {
				logger.Warn("failed to remove raw file", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if producer := kafka.GetProducer(); producer != nil {
		_ = producer.SendDocumentEvent(&kafka.DocumentEvent{
			Type:       "document.deleted",
			DocumentID: documentID,
			UserID:     userID,
			Name:       doc.Name,
		})
	}

	logger.Info("document deleted",
		zap.Uint("document_id", documentID),
		zap.Uint("user_id", userID))
	return nil
}

// Repair 为缺失向量的分块重新生成嵌入
func (s *DocumentService) Repair(ctx context.Context, userID uint) (int, error) {
	var orphans []struct {
		ChunkID    uint
		DocumentID uint
		Text       string
	}
	err := s.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.chunk_id, document_chunks.document_id, document_chunks.text").
		Joins("JOIN documents ON document_chunks.document_id = documents.document_id").
		Joins("LEFT JOIN document_vectors ON document_vectors.chunk_id = document_chunks.chunk_id").
		Where("documents.user_id = ?", userID).
		Where("document_vectors.vector_id IS NULL").
		Find(&orphans).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find chunks missing vectors: %w", err)
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	repaired := 0
	for start := 0; start < len(orphans); start += s.embedBatchSize {
		end := start + s.embedBatchSize
		if end > len(orphans) {
			end = len(orphans)
		}
		batch := orphans[start:end]

		texts := make([]string, len(batch))
		for i, orphan := range batch {
			texts[i] = orphan.Text
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			logger.Warn("repair batch embedding failed", zap.Error(err))
			continue
		}

		for i, orphan := range batch {
			doc := &models.Document{DocumentID: orphan.DocumentID, UserID: userID}
			record := models.DocumentChunk{ChunkID: orphan.ChunkID, DocumentID: orphan.DocumentID, Text: orphan.Text}
			if err := s.storeVector(ctx, doc, record, embeddings[i]); err != nil {
				logger.Warn("repair failed for chunk", zap.Uint("chunk_id", orphan.ChunkID), zap.Error(err))
				continue
			}
			repaired++
		}
	}

	if producer := kafka.GetProducer(); producer != nil {
		_ = producer.SendDocumentEvent(&kafka.DocumentEvent{
			Type:       "document.repaired",
			UserID:     userID,
			ChunkCount: repaired,
		})
	}

	logger.Info("vector repair finished",
		zap.Uint("user_id", userID),
		zap.Int("missing", len(orphans)),
		zap.Int("repaired", repaired))
	return repaired, nil
}

// List 列出用户的文档（不含正文）
func (s *DocumentService) List(ctx context.Context, userID uint) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Select("document_id", "name", "size", "storage_url", "user_id", "created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Status 返回每个文档的分块/向量计数
func (s *DocumentService) Status(ctx context.Context, userID uint) ([]DocumentStatus, error) {
	var statuses []DocumentStatus
	err := s.db.WithContext(ctx).
		Table("documents").
		Select("documents.document_id, documents.name, COUNT(DISTINCT document_chunks.chunk_id) AS chunk_count, COUNT(DISTINCT document_vectors.vector_id) AS vector_count").
		Joins("LEFT JOIN document_chunks ON document_chunks.document_id = documents.document_id").
		Joins("LEFT JOIN document_vectors ON document_vectors.document_id = documents.document_id").
		Where("documents.user_id = ?", userID).
		Group("documents.document_id, documents.name").
		Order("documents.document_id").
		Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute document status: %w", err)
	}
	return statuses, nil
}

func (s *DocumentService) validateUpload(filename string, size int64) error {
	cfg := config.GetAppConfig()
	maxSize := int64(15 << 20)
	allowed := []string{".pdf", ".txt", ".md", ".docx"}
	if cfg != nil {
		if cfg.Upload.MaxSize > 0 {
			maxSize = cfg.Upload.MaxSize
		}
		if len(cfg.Upload.AllowedTypes) > 0 {
			allowed = cfg.Upload.AllowedTypes
		}
	}

	if size > maxSize {
		return fmt.Errorf("file too large: %d bytes (max %d)", size, maxSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, candidate := range allowed {
		if ext == candidate {
			return nil
		}
	}
	return fmt.Errorf("unsupported file type: %s", ext)
}

func (s *DocumentService) notify(sink ProgressSink, progress UploadProgress) {
	if sink != nil {
		sink(progress)
	}
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// objectKeyFromURL 从存储URL中还原对象键（bucket后的路径）
func objectKeyFromURL(storageURL string) string {
	parsed, err := url.Parse(storageURL)
	if err != nil {
		return ""
	}
	parts := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
