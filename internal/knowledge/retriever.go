package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/paperhub/backend-go/internal/logger"
	"github.com/paperhub/backend-go/internal/metrics"
	"go.uber.org/zap"
)

// HybridRetriever 混合检索器
// 对改写后的子查询并发做全文检索和向量检索，两路结果交给RRF融合
type HybridRetriever struct {
	fulltext      FulltextIndexer
	vectors       VectorStore
	embedder      Embedder
	perQueryLimit int
	fulltextLimit int
}

// HybridRetrieverOptions 检索参数
type HybridRetrieverOptions struct {
	PerQueryLimit int
	FulltextLimit int
}

func NewHybridRetriever(fulltext FulltextIndexer, vectors VectorStore, embedder Embedder, opts HybridRetrieverOptions) *HybridRetriever {
	if opts.PerQueryLimit <= 0 {
		opts.PerQueryLimit = 5
	}
	if opts.FulltextLimit <= 0 {
		opts.FulltextLimit = 10
	}
	return &HybridRetriever{
		fulltext:      fulltext,
		vectors:       vectors,
		embedder:      embedder,
		perQueryLimit: opts.PerQueryLimit,
		fulltextLimit: opts.FulltextLimit,
	}
}

// SearchFulltext 对每个子查询做全文检索并合并
// 结果按子查询顺序拼接，去重后整体截断。单个子查询失败只记录日志。
func (r *HybridRetriever) SearchFulltext(ctx context.Context, userID uint, queries []string) []SearchMatch {
	groups := make([][]SearchMatch, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(idx int, q string) {
			defer wg.Done()
			matches, err := r.fulltext.Search(ctx, FulltextSearchRequest{
				UserID: userID,
				Query:  q,
				Limit:  r.perQueryLimit,
			})
			if err != nil {
				logger.Warn("fulltext search failed for sub-query",
					zap.String("query", q),
					zap.Error(err))
				metrics.SearchFailures.WithLabelValues("fts").Inc()
				return
			}
			groups[idx] = matches
		}(i, query)
	}
	wg.Wait()

	seen := make(map[uint]struct{})
	merged := make([]SearchMatch, 0, r.fulltextLimit)
	for _, group := range groups {
		for _, match := range group {
			if _, dup := seen[match.ChunkID]; dup {
				continue
			}
			seen[match.ChunkID] = struct{}{}
			merged = append(merged, match)
			if len(merged) >= r.fulltextLimit {
				return merged
			}
		}
	}
	return merged
}

// SearchVectors 对每个子查询做向量化和相似检索
// 每个子查询的结果保持为独立列表（融合时各占一个排名列表）。
// 单个子查询的embedding或检索失败会被跳过，全部失败才返回错误。
func (r *HybridRetriever) SearchVectors(ctx context.Context, userID uint, queries []string) ([][]SearchMatch, error) {
	groups := make([][]SearchMatch, len(queries))
	failed := make([]bool, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(idx int, q string) {
			defer wg.Done()

			embedding, err := r.embedder.Embed(ctx, q)
			if err != nil {
				logger.Warn("embedding failed for sub-query",
					zap.String("query", q),
					zap.Error(err))
				metrics.SearchFailures.WithLabelValues("embedding").Inc()
				failed[idx] = true
				return
			}

			matches, err := r.vectors.Search(ctx, VectorSearchRequest{
				UserID:         userID,
				QueryEmbedding: embedding,
				Limit:          r.perQueryLimit,
			})
			if err != nil {
				logger.Warn("vector search failed for sub-query",
					zap.String("query", q),
					zap.Error(err))
				metrics.SearchFailures.WithLabelValues("vector").Inc()
				failed[idx] = true
				return
			}
			groups[idx] = matches
		}(i, query)
	}
	wg.Wait()

	allFailed := len(queries) > 0
	survivors := make([][]SearchMatch, 0, len(groups))
	for i, group := range groups {
		if failed[i] {
			continue
		}
		allFailed = false
		survivors = append(survivors, group)
	}
	if allFailed {
		return nil, fmt.Errorf("all vector sub-queries failed")
	}

	return survivors, nil
}

// Retrieve 完整的混合检索：两路并发，RRF融合
func (r *HybridRetriever) Retrieve(ctx context.Context, userID uint, queries []string) ([]FusedResult, error) {
	var (
		wg        sync.WaitGroup
		ftMatches []SearchMatch
		vecGroups [][]SearchMatch
		vecErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		ftMatches = r.SearchFulltext(ctx, userID, queries)
	}()
	go func() {
		defer wg.Done()
		vecGroups, vecErr = r.SearchVectors(ctx, userID, queries)
	}()
	wg.Wait()

	// 向量通路整体失败但全文仍有结果时继续，两路都空才算无上下文
	if vecErr != nil {
		if len(ftMatches) == 0 {
			return nil, vecErr
		}
		logger.Warn("vector retrieval unavailable, falling back to fulltext only", zap.Error(vecErr))
		vecGroups = nil
	}

	return ReciprocalRankFusion(ftMatches, vecGroups), nil
}
