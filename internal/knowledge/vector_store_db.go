package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gorm.io/gorm"
)

// DatabaseVectorStore 基于PostgreSQL的退化向量存储
// 候选集按user_id过滤后在进程内做余弦相似度扫描，仅适合小数据量
type DatabaseVectorStore struct {
	db             *gorm.DB
	candidateLimit int
}

func NewDatabaseVectorStore(db *gorm.DB) VectorStore {
	return &DatabaseVectorStore{db: db, candidateLimit: 1000}
}

func (s *DatabaseVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}

	embeddingJSON, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Table("document_vectors").
		Where("chunk_id = ?", chunk.ChunkID).
		Update("embedding", string(embeddingJSON)).Error
}

func (s *DatabaseVectorStore) DeleteDocument(ctx context.Context, userID uint, documentID uint) error {
	// 向量随文档级联删除，这里无需处理
	return nil
}

func (s *DatabaseVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 5
	}

	var rows []vectorRecord
	err := s.db.WithContext(ctx).
		Table("document_vectors").
		Select("document_vectors.chunk_id, document_vectors.document_id, document_vectors.embedding").
		Joins("JOIN documents ON document_vectors.document_id = documents.document_id").
		Where("documents.user_id = ?", req.UserID).
		Limit(s.candidateLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	queryNorm := vectorNorm(req.QueryEmbedding)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query embedding norm is zero")
	}

	results := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		var embedding []float32
		if err := json.Unmarshal([]byte(row.Embedding), &embedding); err != nil {
			continue
		}
		results = append(results, SearchMatch{
			ChunkID:    row.ChunkID,
			DocumentID: row.DocumentID,
			Score:      cosineSimilarity(req.QueryEmbedding, embedding, queryNorm),
			Source:     SourceVector,
		})
	}

	sortMatchesByScore(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

func (s *DatabaseVectorStore) Ready() bool {
	return s.db != nil
}

type vectorRecord struct {
	ChunkID    uint
	DocumentID uint
	Embedding  string
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot float64
	var normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (normA * math.Sqrt(normB))
}
