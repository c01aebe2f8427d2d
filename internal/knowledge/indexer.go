package knowledge

import (
	"context"
	"time"
)

// 检索结果的来源模态
const (
	SourceFulltext = "fts"
	SourceVector   = "vector"
)

// FulltextChunk 提供索引用的分块结构
type FulltextChunk struct {
	ChunkID    uint
	DocumentID uint
	UserID     uint
	Content    string
	ChunkIndex int
	FileName   string
	CreatedAt  time.Time
}

// FulltextSearchRequest 全文搜索请求
// UserID是所有权边界：查询构造时强制过滤，绝不事后筛选
type FulltextSearchRequest struct {
	UserID uint
	Query  string
	Limit  int
}

// SearchMatch 搜索结果
type SearchMatch struct {
	ChunkID    uint
	DocumentID uint
	Content    string
	Score      float64
	Source     string
}

// FulltextIndexer 全文索引接口
type FulltextIndexer interface {
	IndexChunk(ctx context.Context, chunk FulltextChunk) error
	RemoveDocument(ctx context.Context, userID uint, documentID uint) error
	Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error)
	Ready() bool
}

// NoopFulltextIndexer 默认占位实现
type NoopFulltextIndexer struct{}

func (n *NoopFulltextIndexer) IndexChunk(ctx context.Context, chunk FulltextChunk) error {
	return nil
}

func (n *NoopFulltextIndexer) RemoveDocument(ctx context.Context, userID uint, documentID uint) error {
	return nil
}

func (n *NoopFulltextIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	return nil, nil
}

func (n *NoopFulltextIndexer) Ready() bool {
	return false
}
