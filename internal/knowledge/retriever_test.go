package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 可以按查询内容注入失败
type fakeEmbedder struct {
	mu       sync.Mutex
	failFor  map[string]bool
	requests []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.requests = append(f.requests, text)
	f.mu.Unlock()
	if f.failFor[text] {
		return nil, errors.New("embedding failed")
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Ready() bool     { return true }

// fakeIndexer 记录请求并返回按查询预设的结果
type fakeIndexer struct {
	mu      sync.Mutex
	results map[string][]SearchMatch
	userIDs []uint
	err     error
}

func (f *fakeIndexer) IndexChunk(ctx context.Context, chunk FulltextChunk) error { return nil }
func (f *fakeIndexer) RemoveDocument(ctx context.Context, userID uint, documentID uint) error {
	return nil
}

func (f *fakeIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	f.mu.Lock()
	f.userIDs = append(f.userIDs, req.UserID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results[req.Query], nil
}

func (f *fakeIndexer) Ready() bool { return true }

// fakeVectorStore 记录请求并返回固定结果
type fakeVectorStore struct {
	mu      sync.Mutex
	results []SearchMatch
	userIDs []uint
	err     error
}

func (f *fakeVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error { return nil }
func (f *fakeVectorStore) DeleteDocument(ctx context.Context, userID uint, documentID uint) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	f.mu.Lock()
	f.userIDs = append(f.userIDs, req.UserID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeVectorStore) Ready() bool { return true }

func TestHybridRetriever_FusedOrder(t *testing.T) {
	// 全文返回[c1,c2]，向量返回[c2(0.9), c3(0.8)]：c2两路都命中，必须排第一
	indexer := &fakeIndexer{results: map[string][]SearchMatch{
		"q": {
			{ChunkID: 1, DocumentID: 1, Source: SourceFulltext},
			{ChunkID: 2, DocumentID: 1, Source: SourceFulltext},
		},
	}}
	vectors := &fakeVectorStore{results: []SearchMatch{
		{ChunkID: 2, DocumentID: 1, Score: 0.9, Source: SourceVector},
		{ChunkID: 3, DocumentID: 2, Score: 0.8, Source: SourceVector},
	}}
	retriever := NewHybridRetriever(indexer, vectors, &fakeEmbedder{}, HybridRetrieverOptions{})

	fused, err := retriever.Retrieve(context.Background(), 1, []string{"q"})

	require.NoError(t, err)
	require.Len(t, fused, 3)
	assert.Equal(t, uint(2), fused[0].ChunkID)
	remaining := []uint{fused[1].ChunkID, fused[2].ChunkID}
	assert.Contains(t, remaining, uint(1))
	assert.Contains(t, remaining, uint(3))
}

func TestHybridRetriever_PartialEmbeddingFailure(t *testing.T) {
	// 5个子查询中2个嵌入失败：剩余3个照常检索，不报错
	embedder := &fakeEmbedder{failFor: map[string]bool{"q2": true, "q4": true}}
	vectors := &fakeVectorStore{results: []SearchMatch{
		{ChunkID: 10, DocumentID: 1, Score: 0.9, Source: SourceVector},
	}}
	retriever := NewHybridRetriever(&fakeIndexer{}, vectors, embedder, HybridRetrieverOptions{})

	groups, err := retriever.SearchVectors(context.Background(), 1, []string{"q1", "q2", "q3", "q4", "q5"})

	require.NoError(t, err)
	assert.Len(t, groups, 3)
}

func TestHybridRetriever_AllEmbeddingsFail(t *testing.T) {
	embedder := &fakeEmbedder{failFor: map[string]bool{"q1": true, "q2": true}}
	retriever := NewHybridRetriever(&fakeIndexer{}, &fakeVectorStore{}, embedder, HybridRetrieverOptions{})

	_, err := retriever.SearchVectors(context.Background(), 1, []string{"q1", "q2"})

	assert.Error(t, err)
}

func TestHybridRetriever_VectorFailureDegradesToFulltext(t *testing.T) {
	// 向量通路整体失败但全文有结果：降级为单模态，不报错
	indexer := &fakeIndexer{results: map[string][]SearchMatch{
		"q": {{ChunkID: 1, DocumentID: 1, Source: SourceFulltext}},
	}}
	embedder := &fakeEmbedder{failFor: map[string]bool{"q": true}}
	retriever := NewHybridRetriever(indexer, &fakeVectorStore{}, embedder, HybridRetrieverOptions{})

	fused, err := retriever.Retrieve(context.Background(), 1, []string{"q"})

	require.NoError(t, err)
	require.Len(t, fused, 1)
	assert.Equal(t, uint(1), fused[0].ChunkID)
}

func TestHybridRetriever_BothModalitiesFail(t *testing.T) {
	embedder := &fakeEmbedder{failFor: map[string]bool{"q": true}}
	retriever := NewHybridRetriever(&fakeIndexer{}, &fakeVectorStore{}, embedder, HybridRetrieverOptions{})

	_, err := retriever.Retrieve(context.Background(), 1, []string{"q"})

	assert.Error(t, err)
}

func TestHybridRetriever_ScopePropagation(t *testing.T) {
	// user_id必须原样传到两路检索请求里
	indexer := &fakeIndexer{}
	vectors := &fakeVectorStore{}
	retriever := NewHybridRetriever(indexer, vectors, &fakeEmbedder{}, HybridRetrieverOptions{})

	_, err := retriever.Retrieve(context.Background(), 42, []string{"a", "b"})

	require.NoError(t, err)
	for _, userID := range indexer.userIDs {
		assert.Equal(t, uint(42), userID)
	}
	for _, userID := range vectors.userIDs {
		assert.Equal(t, uint(42), userID)
	}
	assert.NotEmpty(t, indexer.userIDs)
	assert.NotEmpty(t, vectors.userIDs)
}

func TestHybridRetriever_FulltextDedupeAndCap(t *testing.T) {
	// 多个子查询命中相同分块时去重，总量不超过fulltextLimit
	shared := []SearchMatch{
		{ChunkID: 1, DocumentID: 1, Source: SourceFulltext},
		{ChunkID: 2, DocumentID: 1, Source: SourceFulltext},
	}
	indexer := &fakeIndexer{results: map[string][]SearchMatch{
		"a": shared,
		"b": shared,
	}}
	retriever := NewHybridRetriever(indexer, &fakeVectorStore{}, &fakeEmbedder{}, HybridRetrieverOptions{FulltextLimit: 3})

	merged := retriever.SearchFulltext(context.Background(), 1, []string{"a", "b"})

	assert.Len(t, merged, 2)
}
