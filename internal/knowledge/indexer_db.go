package knowledge

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// DatabaseIndexer 基于PostgreSQL的全文查询退化实现（ILIKE子串匹配）
// JOIN documents并按user_id过滤，所有权约束由SQL结构保证
type DatabaseIndexer struct {
	db *gorm.DB
}

func NewDatabaseIndexer(db *gorm.DB) FulltextIndexer {
	return &DatabaseIndexer{db: db}
}

func (d *DatabaseIndexer) IndexChunk(ctx context.Context, chunk FulltextChunk) error {
	// 数据已经保存在document_chunks表中，不需要额外处理
	return nil
}

func (d *DatabaseIndexer) RemoveDocument(ctx context.Context, userID uint, documentID uint) error {
	// 分块随文档级联删除，这里无需处理
	return nil
}

func (d *DatabaseIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 5
	}

	var chunks []chunkRecord
	err := d.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.chunk_id, document_chunks.document_id, document_chunks.text").
		Joins("JOIN documents ON document_chunks.document_id = documents.document_id").
		Where("documents.user_id = ?", req.UserID).
		Where("document_chunks.text ILIKE ?", "%"+req.Query+"%").
		Order("document_chunks.chunk_id ASC").
		Limit(req.Limit).
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("database search failed: %w", err)
	}

	matches := make([]SearchMatch, 0, len(chunks))
	for _, chunk := range chunks {
		matches = append(matches, SearchMatch{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Text,
			Score:      1, // 子串匹配没有相关度，位置即排名
			Source:     SourceFulltext,
		})
	}
	return matches, nil
}

func (d *DatabaseIndexer) Ready() bool {
	return d.db != nil
}

// chunkRecord 数据库查询的最小结构，避免引用模型产生循环
type chunkRecord struct {
	ChunkID    uint
	DocumentID uint
	Text       string
}
