package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChatModel 返回固定内容的补全模型
type stubChatModel struct {
	response string
	err      error
	prompts  []string
}

func (s *stubChatModel) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	for _, msg := range messages {
		s.prompts = append(s.prompts, msg.Content)
	}
	return s.response, s.err
}

func (s *stubChatModel) Ready() bool {
	return true
}

func testPrompt(message string) string {
	return "rewrite: " + message
}

func TestParseRewrittenQueries_StripsNumberingAndQuotes(t *testing.T) {
	response := "1. \"query one\"\n2. \"query two\""

	queries := ParseRewrittenQueries(response, 5)

	assert.Equal(t, []string{"query one", "query two"}, queries)
}

func TestParseRewrittenQueries_Dedupes(t *testing.T) {
	response := "1. \"same query\"\n2. \"same query\"\n3. \"other query\""

	queries := ParseRewrittenQueries(response, 5)

	assert.Equal(t, []string{"same query", "other query"}, queries)
}

func TestParseRewrittenQueries_CapsAtLimit(t *testing.T) {
	response := "one\ntwo\nthree\nfour\nfive\nsix\nseven"

	queries := ParseRewrittenQueries(response, 5)

	assert.Len(t, queries, 5)
	assert.Equal(t, "five", queries[4])
}

func TestParseRewrittenQueries_SkipsBlankLines(t *testing.T) {
	response := "\nfirst\n\n   \nsecond\n"

	queries := ParseRewrittenQueries(response, 5)

	assert.Equal(t, []string{"first", "second"}, queries)
}

func TestQueryRewriter_Rewrite(t *testing.T) {
	model := &stubChatModel{response: "1. \"chunk overlap\"\n2. \"text splitting\""}
	rewriter := NewQueryRewriter(model, testPrompt, 5)

	queries, err := rewriter.Rewrite(context.Background(), "how does chunking work")

	require.NoError(t, err)
	assert.Equal(t, []string{"chunk overlap", "text splitting"}, queries)
	require.Len(t, model.prompts, 1)
	assert.Equal(t, "rewrite: how does chunking work", model.prompts[0])
}

func TestQueryRewriter_PropagatesModelError(t *testing.T) {
	model := &stubChatModel{err: errors.New("model unavailable")}
	rewriter := NewQueryRewriter(model, testPrompt, 5)

	queries, err := rewriter.Rewrite(context.Background(), "anything")

	assert.Error(t, err)
	assert.Nil(t, queries)
}

func TestQueryRewriter_FallsBackToOriginalMessage(t *testing.T) {
	// 模型成功但产出不可用时退回原始消息，不报错
	model := &stubChatModel{response: "\n\n"}
	rewriter := NewQueryRewriter(model, testPrompt, 5)

	queries, err := rewriter.Rewrite(context.Background(), "original question")

	require.NoError(t, err)
	assert.Equal(t, []string{"original question"}, queries)
}

func TestQueryRewriter_EmptyMessage(t *testing.T) {
	rewriter := NewQueryRewriter(&stubChatModel{}, testPrompt, 5)

	_, err := rewriter.Rewrite(context.Background(), "   ")

	assert.Error(t, err)
}
