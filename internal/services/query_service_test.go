package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperhub/backend-go/internal/knowledge"
)

type fakeRewriter struct {
	queries []string
	err     error
}

func (f *fakeRewriter) Rewrite(ctx context.Context, message string) ([]string, error) {
	return f.queries, f.err
}

type fakeRetriever struct {
	fused      []knowledge.FusedResult
	err        error
	gotUserID  uint
	gotQueries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, userID uint, queries []string) ([]knowledge.FusedResult, error) {
	f.gotUserID = userID
	f.gotQueries = queries
	return f.fused, f.err
}

type fakeFetcher struct {
	chunks      []knowledge.RetrievedChunk
	err         error
	gotChunkIDs []uint
}

func (f *fakeFetcher) FetchChunks(ctx context.Context, userID uint, chunkIDs []uint) ([]knowledge.RetrievedChunk, error) {
	f.gotChunkIDs = chunkIDs
	return f.chunks, f.err
}

type fakeChatModel struct {
	answer string
	err    error
}

func (f *fakeChatModel) Complete(ctx context.Context, messages []knowledge.ChatMessage) (string, error) {
	return f.answer, f.err
}

func (f *fakeChatModel) Ready() bool { return true }

// eventRecorder 收集sink收到的全部事件
type eventRecorder struct {
	events  []QueryEvent
	failAll bool
}

func (r *eventRecorder) sink(event QueryEvent) error {
	r.events = append(r.events, event)
	if r.failAll {
		return errors.New("client gone")
	}
	return nil
}

func (r *eventRecorder) stages() []QueryStage {
	var stages []QueryStage
	for _, event := range r.events {
		if event.Type == EventStatus {
			stages = append(stages, event.Stage)
		}
	}
	return stages
}

func (r *eventRecorder) answers() []QueryEvent {
	var answers []QueryEvent
	for _, event := range r.events {
		if event.Type == EventAnswer {
			answers = append(answers, event)
		}
	}
	return answers
}

func newTestService(rewriter queryRewriter, retriever hybridRetriever, fetcher chunkFetcher, chat knowledge.ChatModel) *QueryService {
	svc := NewQueryService(rewriter, retriever, fetcher, chat)
	svc.streamDelay = time.Millisecond
	return svc
}

func TestProcessQuery_EventSequence(t *testing.T) {
	rewriter := &fakeRewriter{queries: []string{"sub query one", "sub query two"}}
	retriever := &fakeRetriever{fused: []knowledge.FusedResult{
		{ChunkID: 1, Score: 0.05},
		{ChunkID: 2, Score: 0.03},
	}}
	fetcher := &fakeFetcher{chunks: []knowledge.RetrievedChunk{
		{ChunkID: 1, DocumentID: 1, DocumentName: "notes.pdf", Text: "chunk one"},
		{ChunkID: 2, DocumentID: 2, DocumentName: "report.pdf", Text: "chunk two"},
	}}
	chat := &fakeChatModel{answer: "the answer is here"}
	recorder := &eventRecorder{}

	svc := newTestService(rewriter, retriever, fetcher, chat)
	result, err := svc.ProcessQuery(context.Background(), 7, "what is chunking", recorder.sink)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "the answer is here", result.Answer)
	assert.Equal(t, []string{"sub query one", "sub query two"}, result.Queries)
	assert.False(t, result.NoContext)
	assert.Len(t, result.Sources, 2)

	assert.Equal(t, uint(7), retriever.gotUserID)
	assert.Equal(t, []uint{1, 2}, fetcher.gotChunkIDs)

	// 状态事件必须按处理阶段顺序出现
	assert.Equal(t, []QueryStage{
		StageReceived, StageRewriting, StageSearching,
		StageFusing, StageAssembling, StageGenerating, StageStreaming,
	}, recorder.stages())

	// queries事件在SEARCHING之前，sources事件在GENERATING之前
	var queriesIdx, searchingIdx, sourcesIdx, generatingIdx int
	for i, event := range recorder.events {
		switch {
		case event.Type == EventQueries:
			queriesIdx = i
		case event.Type == EventSources:
			sourcesIdx = i
		case event.Type == EventStatus && event.Stage == StageSearching:
			searchingIdx = i
		case event.Type == EventStatus && event.Stage == StageGenerating:
			generatingIdx = i
		}
	}
	assert.Less(t, queriesIdx, searchingIdx)
	assert.Less(t, sourcesIdx, generatingIdx)

	// 最后一个事件是done
	last := recorder.events[len(recorder.events)-1]
	assert.Equal(t, EventDone, last.Type)

	answers := recorder.answers()
	require.NotEmpty(t, answers)
	final := answers[len(answers)-1]
	assert.True(t, final.Complete)
	assert.Equal(t, "the answer is here", final.Text)
}

func TestProcessQuery_StreamingCumulative(t *testing.T) {
	answer := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11 w12"
	rewriter := &fakeRewriter{queries: []string{"q"}}
	retriever := &fakeRetriever{fused: []knowledge.FusedResult{{ChunkID: 1}}}
	fetcher := &fakeFetcher{chunks: []knowledge.RetrievedChunk{
		{ChunkID: 1, DocumentID: 1, Text: "ctx"},
	}}
	recorder := &eventRecorder{}

	svc := newTestService(rewriter, retriever, fetcher, &fakeChatModel{answer: answer})
	_, err := svc.ProcessQuery(context.Background(), 1, "question", recorder.sink)

	require.NoError(t, err)
	answers := recorder.answers()
	// 12个词、每5个词一组：第0、5、10个词边界加末尾，共4次发送
	require.Len(t, answers, 4)
	for i := 0; i < len(answers)-1; i++ {
		assert.True(t, strings.HasPrefix(answers[i+1].Text, answers[i].Text),
			"answer %d must extend answer %d", i+1, i)
		assert.False(t, answers[i].Complete)
	}
	assert.Equal(t, answer, answers[len(answers)-1].Text)
	assert.True(t, answers[len(answers)-1].Complete)
}

func TestProcessQuery_NoContext(t *testing.T) {
	rewriter := &fakeRewriter{queries: []string{"q"}}
	retriever := &fakeRetriever{fused: nil}
	recorder := &eventRecorder{}

	svc := newTestService(rewriter, retriever, &fakeFetcher{}, &fakeChatModel{})
	result, err := svc.ProcessQuery(context.Background(), 1, "unrelated question", recorder.sink)

	require.NoError(t, err)
	assert.True(t, result.NoContext)
	assert.Equal(t, NoContextAnswer, result.Answer)
	assert.Empty(t, result.Sources)

	answers := recorder.answers()
	require.Len(t, answers, 1)
	assert.Equal(t, NoContextAnswer, answers[0].Text)
	assert.True(t, answers[0].Complete)
	assert.Equal(t, EventDone, recorder.events[len(recorder.events)-1].Type)
}

func TestProcessQuery_RewriterError(t *testing.T) {
	rewriter := &fakeRewriter{err: errors.New("model unavailable")}
	recorder := &eventRecorder{}

	svc := newTestService(rewriter, &fakeRetriever{}, &fakeFetcher{}, &fakeChatModel{})
	result, err := svc.ProcessQuery(context.Background(), 1, "question", recorder.sink)

	assert.Error(t, err)
	assert.Nil(t, result)

	last := recorder.events[len(recorder.events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, StageFailed, last.Stage)
	assert.Contains(t, last.Error, "query rewriting failed")
}

func TestProcessQuery_RetrievalError(t *testing.T) {
	rewriter := &fakeRewriter{queries: []string{"q"}}
	retriever := &fakeRetriever{err: errors.New("all vector sub-queries failed")}
	recorder := &eventRecorder{}

	svc := newTestService(rewriter, retriever, &fakeFetcher{}, &fakeChatModel{})
	_, err := svc.ProcessQuery(context.Background(), 1, "question", recorder.sink)

	assert.Error(t, err)
	last := recorder.events[len(recorder.events)-1]
	assert.Equal(t, EventError, last.Type)
}

func TestProcessQuery_EmptyMessage(t *testing.T) {
	recorder := &eventRecorder{}

	svc := newTestService(&fakeRewriter{}, &fakeRetriever{}, &fakeFetcher{}, &fakeChatModel{})
	_, err := svc.ProcessQuery(context.Background(), 1, "   ", recorder.sink)

	assert.Error(t, err)
}

func TestProcessQuery_TruncatesToFusionTopN(t *testing.T) {
	// 融合结果超出fusionTopN时只取前N个送去装配上下文
	var fused []knowledge.FusedResult
	for i := 1; i <= 25; i++ {
		fused = append(fused, knowledge.FusedResult{ChunkID: uint(i)})
	}
	rewriter := &fakeRewriter{queries: []string{"q"}}
	retriever := &fakeRetriever{fused: fused}
	fetcher := &fakeFetcher{chunks: []knowledge.RetrievedChunk{
		{ChunkID: 1, DocumentID: 1, Text: "ctx"},
	}}
	recorder := &eventRecorder{}

	svc := newTestService(rewriter, retriever, fetcher, &fakeChatModel{answer: "ok"})
	_, err := svc.ProcessQuery(context.Background(), 1, "question", recorder.sink)

	require.NoError(t, err)
	assert.Len(t, fetcher.gotChunkIDs, 15)
	assert.Equal(t, uint(1), fetcher.gotChunkIDs[0])
	assert.Equal(t, uint(15), fetcher.gotChunkIDs[14])
}

func TestProcessQuery_ClientDisconnect(t *testing.T) {
	// sink持续报错时流式发送中止，但查询结果仍然完整返回
	rewriter := &fakeRewriter{queries: []string{"q"}}
	retriever := &fakeRetriever{fused: []knowledge.FusedResult{{ChunkID: 1}}}
	fetcher := &fakeFetcher{chunks: []knowledge.RetrievedChunk{
		{ChunkID: 1, DocumentID: 1, Text: "ctx"},
	}}
	recorder := &eventRecorder{failAll: true}

	svc := newTestService(rewriter, retriever, fetcher, &fakeChatModel{answer: "a b c d e f g h i j"})
	result, err := svc.ProcessQuery(context.Background(), 1, "question", recorder.sink)

	require.NoError(t, err)
	assert.Equal(t, "a b c d e f g h i j", result.Answer)
	// 第一个answer事件发送失败后不再继续
	assert.Len(t, recorder.answers(), 1)
}
