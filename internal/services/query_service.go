package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paperhub/backend-go/internal/config"
	"github.com/paperhub/backend-go/internal/knowledge"
	"github.com/paperhub/backend-go/internal/logger"
	"github.com/paperhub/backend-go/internal/metrics"
	"go.uber.org/zap"
)

// NoContextAnswer 检索不到任何相关分块时的终态回答
const NoContextAnswer = "No relevant context was found in your documents for this question. Try uploading the related document first or rephrasing the question."

// queryRewriter / hybridRetriever / chunkFetcher 管线各阶段的最小接口
type queryRewriter interface {
	Rewrite(ctx context.Context, message string) ([]string, error)
}

type hybridRetriever interface {
	Retrieve(ctx context.Context, userID uint, queries []string) ([]knowledge.FusedResult, error)
}

type chunkFetcher interface {
	FetchChunks(ctx context.Context, userID uint, chunkIDs []uint) ([]knowledge.RetrievedChunk, error)
}

// QueryResult 一次查询请求的最终产出
type QueryResult struct {
	Answer    string
	Sources   []Source
	Queries   []string
	NoContext bool
}

// QueryService 混合检索问答管线
// 状态机：RECEIVED → REWRITING → SEARCHING → FUSING → ASSEMBLING →
// GENERATING → STREAMING → DONE，任一阶段的不可恢复错误进入FAILED
type QueryService struct {
	rewriter       queryRewriter
	retriever      hybridRetriever
	assembler      chunkFetcher
	chatModel      knowledge.ChatModel
	fusionTopN     int
	maxPerDocument int
	streamWords    int
	streamDelay    time.Duration
}

// NewQueryService 创建查询服务
func NewQueryService(rewriter queryRewriter, retriever hybridRetriever, assembler chunkFetcher, chatModel knowledge.ChatModel) *QueryService {
	svc := &QueryService{
		rewriter:       rewriter,
		retriever:      retriever,
		assembler:      assembler,
		chatModel:      chatModel,
		fusionTopN:     15,
		maxPerDocument: 4,
		streamWords:    5,
		streamDelay:    80 * time.Millisecond,
	}

	if cfg := config.GetAppConfig(); cfg != nil {
		if cfg.Retrieval.FusionTopN > 0 {
			svc.fusionTopN = cfg.Retrieval.FusionTopN
		}
		if cfg.Retrieval.MaxPerDocument > 0 {
			svc.maxPerDocument = cfg.Retrieval.MaxPerDocument
		}
		if cfg.Retrieval.StreamWords > 0 {
			svc.streamWords = cfg.Retrieval.StreamWords
		}
		if cfg.Retrieval.StreamDelayMS > 0 {
			svc.streamDelay = time.Duration(cfg.Retrieval.StreamDelayMS) * time.Millisecond
		}
	}

	return svc
}

// ProcessQuery 处理一次用户提问，过程事件通过sink推送
func (s *QueryService) ProcessQuery(ctx context.Context, userID uint, message string, sink EventSink) (*QueryResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, s.fail(sink, fmt.Errorf("message is empty"))
	}

	_ = sink(statusEvent(StageReceived, "Processing query..."))

	// 阶段1：查询改写
	_ = sink(statusEvent(StageRewriting, "Generating search queries..."))
	rewriteStart := time.Now()
	queries, err := s.rewriter.Rewrite(ctx, message)
	metrics.QueryDuration.WithLabelValues("rewrite").Observe(time.Since(rewriteStart).Seconds())
	if err != nil {
		return nil, s.fail(sink, fmt.Errorf("query rewriting failed: %w", err))
	}
	_ = sink(queriesEvent(queries))

	// 阶段2：混合检索+RRF融合
	_ = sink(statusEvent(StageSearching, "Searching documents..."))
	searchStart := time.Now()
	fused, err := s.retriever.Retrieve(ctx, userID, queries)
	metrics.QueryDuration.WithLabelValues("search").Observe(time.Since(searchStart).Seconds())
	if err != nil {
		return nil, s.fail(sink, fmt.Errorf("retrieval failed: %w", err))
	}
	_ = sink(statusEvent(StageFusing, "Ranking results..."))

	if len(fused) == 0 {
		return s.finishNoContext(sink, queries)
	}

	if len(fused) > s.fusionTopN {
		fused = fused[:s.fusionTopN]
	}
	chunkIDs := make([]uint, len(fused))
	for i, result := range fused {
		chunkIDs[i] = result.ChunkID
	}

	// 阶段3：上下文拼接+按文档多样化
	_ = sink(statusEvent(StageAssembling, "Assembling context..."))
	assembleStart := time.Now()
	chunks, err := s.assembler.FetchChunks(ctx, userID, chunkIDs)
	metrics.QueryDuration.WithLabelValues("assemble").Observe(time.Since(assembleStart).Seconds())
	if err != nil {
		return nil, s.fail(sink, fmt.Errorf("context assembly failed: %w", err))
	}

	diversified := knowledge.DiversifyByDocument(chunks, s.maxPerDocument, s.fusionTopN)
	if len(diversified) == 0 {
		return s.finishNoContext(sink, queries)
	}

	contextText := BuildContext(diversified)
	sources := BuildSources(diversified)
	_ = sink(sourcesEvent(sources))

	// 阶段4：生成回答（底层调用非流式）
	_ = sink(statusEvent(StageGenerating, "Generating answer..."))
	generateStart := time.Now()
	answer, err := s.chatModel.Complete(ctx, []knowledge.ChatMessage{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: AnswerPrompt(contextText, message)},
	})
	metrics.QueryDuration.WithLabelValues("generate").Observe(time.Since(generateStart).Seconds())
	if err != nil {
		return nil, s.fail(sink, fmt.Errorf("answer generation failed: %w", err))
	}

	// 阶段5：按词分组模拟流式输出
	_ = sink(statusEvent(StageStreaming, "Streaming answer..."))
	s.streamAnswer(ctx, answer, sink)

	_ = sink(doneEvent())
	metrics.QueriesTotal.WithLabelValues("done").Inc()

	logger.Info("query processed",
		zap.Uint("user_id", userID),
		zap.Int("queries", len(queries)),
		zap.Int("sources", len(sources)))

	return &QueryResult{
		Answer:  answer,
		Sources: sources,
		Queries: queries,
	}, nil
}

// streamAnswer 把完整回答切成固定词数的分组，按固定间隔累积发送
// 每次发送之间检查取消信号；客户端断开后停止发送但不影响已生成的回答
func (s *QueryService) streamAnswer(ctx context.Context, answer string, sink EventSink) {
	words := strings.Fields(answer)
	if len(words) == 0 {
		_ = sink(answerEvent(answer, true))
		return
	}

	var builder strings.Builder
	for i, word := range words {
		if i > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(word)

		last := i == len(words)-1
		if i%s.streamWords == 0 || last {
			if err := sink(answerEvent(builder.String(), last)); err != nil {
				logger.Debug("client disconnected during streaming", zap.Error(err))
				return
			}
			if !last {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.streamDelay):
				}
			}
		}
	}
}

func (s *QueryService) finishNoContext(sink EventSink, queries []string) (*QueryResult, error) {
	_ = sink(answerEvent(NoContextAnswer, true))
	_ = sink(doneEvent())
	metrics.QueriesTotal.WithLabelValues("no_context").Inc()

	return &QueryResult{
		Answer:    NoContextAnswer,
		Queries:   queries,
		Sources:   []Source{},
		NoContext: true,
	}, nil
}

func (s *QueryService) fail(sink EventSink, err error) error {
	logger.Error("query pipeline failed", zap.Error(err))
	_ = sink(errorEvent(err.Error()))
	metrics.QueriesTotal.WithLabelValues("failed").Inc()
	return err
}
