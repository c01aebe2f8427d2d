package services

// QueryStage 单次查询请求的处理阶段
type QueryStage string

const (
	StageReceived   QueryStage = "RECEIVED"
	StageRewriting  QueryStage = "REWRITING"
	StageSearching  QueryStage = "SEARCHING"
	StageFusing     QueryStage = "FUSING"
	StageAssembling QueryStage = "ASSEMBLING"
	StageGenerating QueryStage = "GENERATING"
	StageStreaming  QueryStage = "STREAMING"
	StageDone       QueryStage = "DONE"
	StageFailed     QueryStage = "FAILED"
)

// QueryEventType 事件类型标签，消费端按Type分支处理
type QueryEventType string

const (
	EventStatus  QueryEventType = "status"
	EventQueries QueryEventType = "queries"
	EventSources QueryEventType = "sources"
	EventAnswer  QueryEventType = "answer"
	EventDone    QueryEventType = "done"
	EventError   QueryEventType = "error"
)

// Source 回答引用的分块来源
type Source struct {
	ChunkID      uint   `json:"chunk_id"`
	DocumentID   uint   `json:"document_id"`
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
}

// QueryEvent 查询管线向客户端推送的事件
// Type决定哪些字段有效：status携带Stage/Message，queries携带Queries，
// sources携带Sources，answer携带Text/Complete，error携带Error
type QueryEvent struct {
	Type     QueryEventType `json:"type"`
	Stage    QueryStage     `json:"stage,omitempty"`
	Message  string         `json:"message,omitempty"`
	Queries  []string       `json:"queries,omitempty"`
	Sources  []Source       `json:"sources,omitempty"`
	Text     string         `json:"text,omitempty"`
	Complete bool           `json:"complete,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// EventSink 事件发送回调，返回错误表示客户端已不可达
type EventSink func(event QueryEvent) error

func statusEvent(stage QueryStage, message string) QueryEvent {
	return QueryEvent{Type: EventStatus, Stage: stage, Message: message}
}

func queriesEvent(queries []string) QueryEvent {
	return QueryEvent{Type: EventQueries, Queries: queries}
}

func sourcesEvent(sources []Source) QueryEvent {
	return QueryEvent{Type: EventSources, Sources: sources}
}

func answerEvent(text string, complete bool) QueryEvent {
	return QueryEvent{Type: EventAnswer, Text: text, Complete: complete}
}

func doneEvent() QueryEvent {
	return QueryEvent{Type: EventDone, Stage: StageDone}
}

func errorEvent(message string) QueryEvent {
	return QueryEvent{Type: EventError, Stage: StageFailed, Error: message}
}
