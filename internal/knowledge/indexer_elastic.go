package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchIndexer 基于ES的全文索引
// 所有查询都携带user_id的term过滤，跨用户数据在查询层面不可达
type ElasticsearchIndexer struct {
	client    *elasticsearch.Client
	index     string
	indexOnce sync.Once
	indexErr  error
}

// NewElasticsearchIndexer 创建ES索引器
func NewElasticsearchIndexer(addresses []string, username, password, apiKey, index string) (FulltextIndexer, error) {
	if len(addresses) == 0 {
		return &NoopFulltextIndexer{}, nil
	}

	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
		APIKey:    apiKey,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	if index == "" {
		index = "document_chunks"
	}

	return &ElasticsearchIndexer{
		client: client,
		index:  index,
	}, nil
}

func (e *ElasticsearchIndexer) ensureIndex(ctx context.Context) error {
	e.indexOnce.Do(func() {
		req := esapi.IndicesExistsRequest{
			Index: []string{e.index},
		}
		resp, err := req.Do(ctx, e.client)
		if err != nil {
			e.indexErr = err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == 200 {
			return
		}

		mapping := map[string]interface{}{
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"user_id":     map[string]interface{}{"type": "keyword"},
					"document_id": map[string]interface{}{"type": "keyword"},
					"chunk_id":    map[string]interface{}{"type": "keyword"},
					"chunk_index": map[string]interface{}{"type": "integer"},
					"content": map[string]interface{}{
						"type":          "text",
						"index_options": "offsets",
					},
					"file_name":  map[string]interface{}{"type": "keyword"},
					"created_at": map[string]interface{}{"type": "date"},
				},
			},
		}

		body, _ := json.Marshal(mapping)
		createReq := esapi.IndicesCreateRequest{
			Index: e.index,
			Body:  bytes.NewReader(body),
		}
		createResp, err := createReq.Do(ctx, e.client)
		if err != nil {
			e.indexErr = err
			return
		}
		defer createResp.Body.Close()

		if createResp.IsError() {
			e.indexErr = fmt.Errorf("create index error: %s", createResp.String())
		}
	})
	return e.indexErr
}

func (e *ElasticsearchIndexer) IndexChunk(ctx context.Context, chunk FulltextChunk) error {
	if e.client == nil {
		return nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}

	doc := map[string]interface{}{
		"chunk_id":    chunk.ChunkID,
		"document_id": chunk.DocumentID,
		"user_id":     chunk.UserID,
		"content":     chunk.Content,
		"chunk_index": chunk.ChunkIndex,
		"file_name":   chunk.FileName,
		"created_at":  chunk.CreatedAt,
	}

	payload, _ := json.Marshal(doc)
	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: fmt.Sprintf("%d", chunk.ChunkID),
		Body:       bytes.NewReader(payload),
		Refresh:    "true",
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("index chunk error: %s", resp.String())
	}

	return nil
}

func (e *ElasticsearchIndexer) RemoveDocument(ctx context.Context, userID uint, documentID uint) error {
	if e.client == nil {
		return nil
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{
							"document_id": documentID,
						},
					},
					map[string]interface{}{
						"term": map[string]interface{}{
							"user_id": userID,
						},
					},
				},
			},
		},
	}

	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("delete document error: %s", resp.String())
	}

	return nil
}

func (e *ElasticsearchIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	if e.client == nil {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 5
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}

	// 短语匹配优先，无结果时降级为模糊匹配；user_id过滤在must子句，不可绕过
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"term": map[string]interface{}{
					"user_id": req.UserID,
				},
			},
		},
		"should": []interface{}{
			map[string]interface{}{
				"match_phrase": map[string]interface{}{
					"content": map[string]interface{}{
						"query": req.Query,
						"boost": 3.0,
					},
				},
			},
			map[string]interface{}{
				"match": map[string]interface{}{
					"content": map[string]interface{}{
						"query":                req.Query,
						"operator":             "or",
						"minimum_should_match": "70%",
						"boost":                1.0,
					},
				},
			},
		},
		"minimum_should_match": 1,
	}

	body := map[string]interface{}{
		"size": req.Limit,
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(payload),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawHits, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, nil
	}

	matches := make([]SearchMatch, 0, len(rawHits))
	for _, raw := range rawHits {
		source, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		score, _ := source["_score"].(float64)
		idStr, _ := source["_id"].(string)
		chunkID := parseUint(idStr)
		doc, ok := source["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := doc["content"].(string)
		documentID := parseUint(fmt.Sprintf("%v", doc["document_id"]))

		matches = append(matches, SearchMatch{
			ChunkID:    uint(chunkID),
			DocumentID: uint(documentID),
			Content:    content,
			Score:      score,
			Source:     SourceFulltext,
		})
	}

	return matches, nil
}

func (e *ElasticsearchIndexer) Ready() bool {
	return e.client != nil
}

func parseUint(value string) uint64 {
	value = strings.TrimSpace(value)
	var id uint64
	fmt.Sscanf(value, "%d", &id)
	return id
}
