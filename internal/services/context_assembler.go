package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/paperhub/backend-go/internal/knowledge"
	"github.com/paperhub/backend-go/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sourceExcerptLimit 引用摘录的最大字符数，避免元数据过大
const sourceExcerptLimit = 500

// ContextAssembler 上下文拼接服务
// 按多样化后的顺序取回分块文本和所属文档信息，拼接成提示词上下文
type ContextAssembler struct {
	db    *gorm.DB
	cache *RedisChunkCache
}

func NewContextAssembler(db *gorm.DB, cache *RedisChunkCache) *ContextAssembler {
	return &ContextAssembler{db: db, cache: cache}
}

// FetchChunks 按ID列表取回分块，保持输入顺序
// 先查Redis缓存，未命中的走一次user_id范围内的联表查询，
// 查询结构上就排除了其他用户的数据
func (ca *ContextAssembler) FetchChunks(ctx context.Context, userID uint, chunkIDs []uint) ([]knowledge.RetrievedChunk, error) {
	if len(chunkIDs) == 0 {
		return []knowledge.RetrievedChunk{}, nil
	}

	found := make(map[uint]knowledge.RetrievedChunk, len(chunkIDs))
	missing := make([]uint, 0, len(chunkIDs))

	if ca.cache != nil {
		for _, chunkID := range chunkIDs {
			cached, err := ca.cache.Get(ctx, userID, chunkID)
			if err != nil {
				missing = append(missing, chunkID)
				continue
			}
			found[chunkID] = knowledge.RetrievedChunk{
				ChunkID:      cached.ChunkID,
				DocumentID:   cached.DocumentID,
				DocumentName: cached.DocumentName,
				Text:         cached.Text,
			}
		}
	} else {
		missing = chunkIDs
	}

	if len(missing) > 0 {
		var rows []retrievedChunkRow
		err := ca.db.WithContext(ctx).
			Table("document_chunks").
			Select("document_chunks.chunk_id, document_chunks.text, documents.document_id, documents.name AS document_name").
			Joins("JOIN documents ON document_chunks.document_id = documents.document_id").
			Where("documents.user_id = ?", userID).
			Where("document_chunks.chunk_id IN ?", missing).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chunks: %w", err)
		}

		for _, row := range rows {
			chunk := knowledge.RetrievedChunk{
				ChunkID:      row.ChunkID,
				DocumentID:   row.DocumentID,
				DocumentName: row.DocumentName,
				Text:         row.Text,
			}
			found[row.ChunkID] = chunk

			if ca.cache != nil {
				if err := ca.cache.Store(ctx, userID, CachedChunk{
					ChunkID:      chunk.ChunkID,
					DocumentID:   chunk.DocumentID,
					DocumentName: chunk.DocumentName,
					Text:         chunk.Text,
				}); err != nil {
					logger.Warn("failed to cache chunk", zap.Uint("chunk_id", chunk.ChunkID), zap.Error(err))
				}
			}
		}
	}

	// 按传入的相关性顺序输出，取不到的ID直接跳过
	chunks := make([]knowledge.RetrievedChunk, 0, len(chunkIDs))
	for _, chunkID := range chunkIDs {
		if chunk, ok := found[chunkID]; ok {
			chunks = append(chunks, chunk)
		}
	}

	return chunks, nil
}

// BuildContext 把分块文本拼接成上下文块
func BuildContext(chunks []knowledge.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

// BuildSources 生成引用来源列表，摘录截断到500字符
func BuildSources(chunks []knowledge.RetrievedChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, Source{
			ChunkID:      chunk.ChunkID,
			DocumentID:   chunk.DocumentID,
			DocumentName: chunk.DocumentName,
			Text:         excerpt(chunk.Text, sourceExcerptLimit),
		})
	}
	return sources
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

type retrievedChunkRow struct {
	ChunkID      uint
	DocumentID   uint
	DocumentName string
	Text         string
}
