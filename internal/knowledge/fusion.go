package knowledge

import "sort"

// rrfConstant RRF平滑常数，排名靠后的结果贡献衰减速度由它控制
const rrfConstant = 60

// FusedResult 融合后的候选分块
type FusedResult struct {
	ChunkID uint
	Score   float64
}

// RetrievedChunk 补全文本后的检索结果
type RetrievedChunk struct {
	ChunkID      uint
	DocumentID   uint
	DocumentName string
	Text         string
}

// ReciprocalRankFusion 倒数排名融合
// 全文结果作为一个列表，每个子查询的向量结果各自作为一个列表，
// 同一分块在多个列表中出现时分数累加。排序稳定，同分按首次出现顺序。
func ReciprocalRankFusion(fullText []SearchMatch, vectorGroups [][]SearchMatch) []FusedResult {
	scores := make(map[uint]float64)
	order := make([]uint, 0)

	accumulate := func(matches []SearchMatch) {
		for rank, match := range matches {
			if _, seen := scores[match.ChunkID]; !seen {
				order = append(order, match.ChunkID)
			}
			scores[match.ChunkID] += 1.0 / float64(rrfConstant+rank)
		}
	}

	accumulate(fullText)
	for _, group := range vectorGroups {
		accumulate(group)
	}

	fused := make([]FusedResult, 0, len(order))
	for _, chunkID := range order {
		fused = append(fused, FusedResult{ChunkID: chunkID, Score: scores[chunkID]})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	return fused
}

// DiversifyByDocument 按文档轮询交错，避免单一文档霸占上下文
// 按原顺序分组后轮流取各文档的下一个分块，单文档上限maxPerDocument，总量上限overallCap
func DiversifyByDocument(chunks []RetrievedChunk, maxPerDocument, overallCap int) []RetrievedChunk {
	if len(chunks) == 0 {
		return []RetrievedChunk{}
	}
	if maxPerDocument <= 0 {
		maxPerDocument = 4
	}
	if overallCap <= 0 {
		overallCap = 15
	}

	groups := make(map[uint][]RetrievedChunk)
	docOrder := make([]uint, 0)
	for _, chunk := range chunks {
		if _, seen := groups[chunk.DocumentID]; !seen {
			docOrder = append(docOrder, chunk.DocumentID)
		}
		groups[chunk.DocumentID] = append(groups[chunk.DocumentID], chunk)
	}

	result := make([]RetrievedChunk, 0, overallCap)
	for round := 0; round < maxPerDocument; round++ {
		progressed := false
		for _, documentID := range docOrder {
			group := groups[documentID]
			if round >= len(group) {
				continue
			}
			progressed = true
			result = append(result, group[round])
			if len(result) >= overallCap {
				return result
			}
		}
		if !progressed {
			break
		}
	}

	return result
}

// sortMatchesByScore 按分数降序稳定排序
func sortMatchesByScore(matches []SearchMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}
