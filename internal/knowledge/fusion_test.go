package knowledge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReciprocalRankFusion_ExactScore(t *testing.T) {
	// 同一分块在两个列表中都排第0位：2/(60+0) = 1/30
	fullText := []SearchMatch{{ChunkID: 1, Source: SourceFulltext}}
	vectorGroups := [][]SearchMatch{{{ChunkID: 1, Score: 0.9, Source: SourceVector}}}

	fused := ReciprocalRankFusion(fullText, vectorGroups)

	require.Len(t, fused, 1)
	assert.Equal(t, uint(1), fused[0].ChunkID)
	assert.Equal(t, 1.0/30.0, fused[0].Score)
}

func TestReciprocalRankFusion_AccumulatesAcrossLists(t *testing.T) {
	// c2在两个列表中都出现，融合分数必须高于只出现一次的c1和c3
	fullText := []SearchMatch{
		{ChunkID: 1, Source: SourceFulltext},
		{ChunkID: 2, Source: SourceFulltext},
	}
	vectorGroups := [][]SearchMatch{{
		{ChunkID: 2, Score: 0.9, Source: SourceVector},
		{ChunkID: 3, Score: 0.8, Source: SourceVector},
	}}

	fused := ReciprocalRankFusion(fullText, vectorGroups)

	require.Len(t, fused, 3)
	assert.Equal(t, uint(2), fused[0].ChunkID)
	// c2: 1/61 + 1/60, c1: 1/60, c3: 1/61
	assert.Equal(t, 1.0/61.0+1.0/60.0, fused[0].Score)
	assert.Equal(t, uint(1), fused[1].ChunkID)
	assert.Equal(t, uint(3), fused[2].ChunkID)
}

func TestReciprocalRankFusion_StableTies(t *testing.T) {
	// 分数相同按首次出现顺序排列
	fullText := []SearchMatch{
		{ChunkID: 7, Source: SourceFulltext},
	}
	vectorGroups := [][]SearchMatch{{
		{ChunkID: 8, Score: 0.5, Source: SourceVector},
	}}

	fused := ReciprocalRankFusion(fullText, vectorGroups)

	require.Len(t, fused, 2)
	assert.Equal(t, fused[0].Score, fused[1].Score)
	assert.Equal(t, uint(7), fused[0].ChunkID)
	assert.Equal(t, uint(8), fused[1].ChunkID)
}

func TestReciprocalRankFusion_MultipleSubQueries(t *testing.T) {
	vectorGroups := [][]SearchMatch{
		{{ChunkID: 5, Score: 0.9}},
		{{ChunkID: 5, Score: 0.7}},
		{{ChunkID: 6, Score: 0.8}},
	}

	fused := ReciprocalRankFusion(nil, vectorGroups)

	require.Len(t, fused, 2)
	assert.Equal(t, uint(5), fused[0].ChunkID)
	assert.Equal(t, 2.0/60.0, fused[0].Score)
	assert.Equal(t, 1.0/60.0, fused[1].Score)
}

func TestReciprocalRankFusion_Empty(t *testing.T) {
	fused := ReciprocalRankFusion(nil, nil)
	assert.Empty(t, fused)
}

func buildCandidates(docCount, perDoc int) []RetrievedChunk {
	var chunks []RetrievedChunk
	// 按融合相关性顺序交错构造：doc1[0], doc2[0], ..., doc1[1], ...
	for i := 0; i < perDoc; i++ {
		for d := 1; d <= docCount; d++ {
			chunks = append(chunks, RetrievedChunk{
				ChunkID:      uint(d*100 + i),
				DocumentID:   uint(d),
				DocumentName: fmt.Sprintf("doc-%d", d),
				Text:         fmt.Sprintf("chunk %d of doc %d", i, d),
			})
		}
	}
	return chunks
}

func TestDiversifyByDocument_RoundRobin(t *testing.T) {
	// 3个文档各10个候选，maxPerDocument=4：每个文档恰好4个，共12个
	chunks := buildCandidates(3, 10)

	result := DiversifyByDocument(chunks, 4, 15)

	require.Len(t, result, 12)

	perDoc := map[uint]int{}
	for _, chunk := range result {
		perDoc[chunk.DocumentID]++
	}
	assert.Equal(t, 4, perDoc[1])
	assert.Equal(t, 4, perDoc[2])
	assert.Equal(t, 4, perDoc[3])

	// 轮询顺序：doc1[0], doc2[0], doc3[0], doc1[1], ...
	for i, chunk := range result {
		expectedDoc := uint(i%3 + 1)
		expectedRound := i / 3
		assert.Equal(t, expectedDoc, chunk.DocumentID, "position %d", i)
		assert.Equal(t, uint(expectedDoc)*100+uint(expectedRound), chunk.ChunkID, "position %d", i)
	}
}

func TestDiversifyByDocument_DominantDocumentCapped(t *testing.T) {
	// 一个文档贡献大量高排名候选也不能超过maxPerDocument
	var chunks []RetrievedChunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, RetrievedChunk{ChunkID: uint(100 + i), DocumentID: 1})
	}
	chunks = append(chunks, RetrievedChunk{ChunkID: 900, DocumentID: 2})

	result := DiversifyByDocument(chunks, 4, 15)

	perDoc := map[uint]int{}
	for _, chunk := range result {
		perDoc[chunk.DocumentID]++
	}
	assert.Equal(t, 4, perDoc[1])
	assert.Equal(t, 1, perDoc[2])
}

func TestDiversifyByDocument_OverallCap(t *testing.T) {
	// 5个文档各10个候选，总量上限15生效
	chunks := buildCandidates(5, 10)

	result := DiversifyByDocument(chunks, 4, 15)

	assert.Len(t, result, 15)
}

func TestDiversifyByDocument_FewerThanMax(t *testing.T) {
	// 候选不足maxPerDocument时全部输出，不补齐
	chunks := []RetrievedChunk{
		{ChunkID: 1, DocumentID: 1},
		{ChunkID: 2, DocumentID: 2},
	}

	result := DiversifyByDocument(chunks, 4, 15)

	assert.Len(t, result, 2)
}

func TestDiversifyByDocument_Empty(t *testing.T) {
	assert.Empty(t, DiversifyByDocument(nil, 4, 15))
}
