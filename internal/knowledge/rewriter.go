package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/paperhub/backend-go/internal/logger"
	"go.uber.org/zap"
)

// maxRewrittenQueries 查询改写数量上限
const maxRewrittenQueries = 5

var queryLinePattern = regexp.MustCompile(`^\d+\.\s*"|"$`)

// QueryRewriter 用语言模型把用户消息扩展成多个检索子查询
type QueryRewriter struct {
	chatModel  ChatModel
	promptFunc func(message string) string
	maxQueries int
}

func NewQueryRewriter(chatModel ChatModel, promptFunc func(message string) string, maxQueries int) *QueryRewriter {
	if maxQueries <= 0 || maxQueries > maxRewrittenQueries {
		maxQueries = maxRewrittenQueries
	}
	return &QueryRewriter{
		chatModel:  chatModel,
		promptFunc: promptFunc,
		maxQueries: maxQueries,
	}
}

// Rewrite 改写用户消息，返回去重后的子查询列表
// 模型失败时直接返回错误，不做静默降级
func (r *QueryRewriter) Rewrite(ctx context.Context, message string) ([]string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message is empty")
	}

	response, err := r.chatModel.Complete(ctx, []ChatMessage{
		{Role: "user", Content: r.promptFunc(message)},
	})
	if err != nil {
		return nil, fmt.Errorf("query rewrite failed: %w", err)
	}

	queries := ParseRewrittenQueries(response, r.maxQueries)
	if len(queries) == 0 {
		// 模型没有产出可用查询时退回原始消息
		queries = []string{message}
	}

	logger.Debug("queries rewritten",
		zap.Int("count", len(queries)),
		zap.Strings("queries", queries))

	return queries, nil
}

// ParseRewrittenQueries 解析模型输出
// 去掉行首编号和包裹引号，去重，最多保留limit条，不足不补
func ParseRewrittenQueries(response string, limit int) []string {
	if limit <= 0 {
		limit = maxRewrittenQueries
	}

	seen := make(map[string]struct{})
	queries := make([]string, 0, limit)
	for _, line := range strings.Split(response, "\n") {
		line = queryLinePattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		queries = append(queries, line)
		if len(queries) >= limit {
			break
		}
	}
	return queries
}
