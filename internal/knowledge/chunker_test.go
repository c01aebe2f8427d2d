package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Split_RespectsSize(t *testing.T) {
	chunker := NewChunker(10, 3)
	text := strings.Repeat("abcdefghij", 5)

	chunks := chunker.Split(text)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 10)
	}
}

func TestChunker_Split_OverlapContinuity(t *testing.T) {
	// 步长=size-overlap，相邻chunk的首尾必须重叠overlap个字符
	chunker := NewChunker(10, 3)
	text := "0123456789ABCDEFGHIJKLMNOPQRST"

	chunks := chunker.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 0; i < len(chunks)-1; i++ {
		current := []rune(chunks[i].Text)
		next := []rune(chunks[i+1].Text)
		tail := string(current[len(current)-3:])
		head := string(next[:3])
		assert.Equal(t, tail, head, "chunks %d/%d", i, i+1)
	}
}

func TestChunker_Split_MultiByteRunes(t *testing.T) {
	// 窗口按rune计数，多字节字符不能被截断
	chunker := NewChunker(4, 1)

	chunks := chunker.Split("一二三四五六七")

	require.Len(t, chunks, 2)
	assert.Equal(t, "一二三四", chunks[0].Text)
	assert.Equal(t, "四五六七", chunks[1].Text)
}

func TestChunker_Split_NormalizesWhitespace(t *testing.T) {
	chunker := NewChunker(100, 10)

	chunks := chunker.Split("hello \t\n  world\r\n  again")

	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world again", chunks[0].Text)
}

func TestChunker_Split_Empty(t *testing.T) {
	chunker := NewChunker(800, 120)

	assert.Nil(t, chunker.Split(""))
	assert.Nil(t, chunker.Split("   \n\t  "))
}

func TestChunker_Split_SequentialIndexes(t *testing.T) {
	chunker := NewChunker(10, 0)

	chunks := chunker.Split(strings.Repeat("x", 35))

	require.Len(t, chunks, 4)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestNewChunker_GuardsInvalidParams(t *testing.T) {
	// overlap不小于size时收缩为size/4，保证步长为正
	chunker := NewChunker(8, 8)

	chunks := chunker.Split(strings.Repeat("y", 20))

	assert.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 8)
	}
}
