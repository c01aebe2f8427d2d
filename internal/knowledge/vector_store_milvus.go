package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	VectorSize int
	Distance   string
	Database   string
	UseTLS     bool
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
}

// NewMilvusVectorStore 创建Milvus向量存储
// 单collection，user_id作为标量字段，检索时通过表达式过滤
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "document_vectors"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1024
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch value {
	case "IP", "ip", "DOT", "INNER_PRODUCT":
		return "IP"
	case "L2", "l2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

func (s *milvusVectorStore) metricType() entity.MetricType {
	switch s.distance {
	case "IP":
		return entity.IP
	case "L2":
		return entity.L2
	default:
		return entity.COSINE
	}
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     "chunk_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "user_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorSize),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	index, err = entity.NewIndexHNSW(s.metricType(), 8, 64)
	if err != nil {
		index, err = entity.NewIndexIvfFlat(s.metricType(), 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return nil
}

func (s *milvusVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	if len(chunk.Embedding) != s.vectorSize {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(chunk.Embedding), s.vectorSize)
	}

	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	idColumn := entity.NewColumnInt64("id", []int64{int64(chunk.ChunkID)})
	chunkIDColumn := entity.NewColumnInt64("chunk_id", []int64{int64(chunk.ChunkID)})
	documentIDColumn := entity.NewColumnInt64("document_id", []int64{int64(chunk.DocumentID)})
	userIDColumn := entity.NewColumnInt64("user_id", []int64{int64(chunk.UserID)})
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, [][]float32{chunk.Embedding})

	_, err := s.milvusClient.Insert(ctx, s.collection, "", idColumn, chunkIDColumn, documentIDColumn, userIDColumn, vectorColumn)
	if err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	return nil
}

func (s *milvusVectorStore) DeleteDocument(ctx context.Context, userID uint, documentID uint) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	expr := fmt.Sprintf("document_id == %d && user_id == %d", documentID, userID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}

	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if req.Limit == 0 {
		req.Limit = 5
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(req.QueryEmbedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		fmt.Sprintf("user_id == %d", req.UserID),
		[]string{"chunk_id", "document_id"},
		[]entity.Vector{queryVector},
		"vector",
		s.metricType(),
		req.Limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchMatch{}, nil
	}

	var chunkIDs, documentIDs []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "chunk_id":
			if col, ok := field.(*entity.ColumnInt64); ok {
				chunkIDs = col.Data()
			}
		case "document_id":
			if col, ok := field.(*entity.ColumnInt64); ok {
				documentIDs = col.Data()
			}
		}
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := SearchMatch{Source: SourceVector}
		if i < len(chunkIDs) {
			match.ChunkID = uint(chunkIDs[i])
		}
		if i < len(documentIDs) {
			match.DocumentID = uint(documentIDs[i])
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		matches = append(matches, match)
	}

	return matches, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
