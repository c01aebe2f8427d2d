package knowledge

import "context"

// VectorChunk 存储向量信息
type VectorChunk struct {
	ChunkID    uint
	DocumentID uint
	UserID     uint
	Text       string
	Embedding  []float32
}

// VectorSearchRequest 向量检索请求
// UserID是所有权边界，在存储层查询表达式中强制过滤
type VectorSearchRequest struct {
	UserID         uint
	QueryEmbedding []float32
	Limit          int
}

// VectorStore 向量存储抽象
type VectorStore interface {
	UpsertChunk(ctx context.Context, chunk VectorChunk) error
	DeleteDocument(ctx context.Context, userID uint, documentID uint) error
	Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error)
	Ready() bool
}

// NoopVectorStore 默认占位实现
type NoopVectorStore struct{}

func (n *NoopVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error {
	return nil
}

func (n *NoopVectorStore) DeleteDocument(ctx context.Context, userID uint, documentID uint) error {
	return nil
}

func (n *NoopVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	return nil, nil
}

func (n *NoopVectorStore) Ready() bool {
	return false
}
