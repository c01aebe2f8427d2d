package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paperhub/backend-go/internal/knowledge"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return db, mock
}

func chunkRows(ids ...uint) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"chunk_id", "text", "document_id", "document_name"})
	for _, id := range ids {
		rows.AddRow(id, "text of chunk", id, "doc.pdf")
	}
	return rows
}

func TestContextAssembler_FetchChunks_PreservesInputOrder(t *testing.T) {
	db, mock := newMockDB(t)
	assembler := NewContextAssembler(db, nil)

	// 数据库按主键顺序返回，输出必须按传入的相关性顺序重排
	mock.ExpectQuery(`SELECT .+ FROM "document_chunks" JOIN documents`).
		WillReturnRows(chunkRows(1, 2, 3))

	chunks, err := assembler.FetchChunks(context.Background(), 1, []uint{3, 1, 2})

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, uint(3), chunks[0].ChunkID)
	assert.Equal(t, uint(1), chunks[1].ChunkID)
	assert.Equal(t, uint(2), chunks[2].ChunkID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContextAssembler_FetchChunks_SkipsMissingIDs(t *testing.T) {
	db, mock := newMockDB(t)
	assembler := NewContextAssembler(db, nil)

	mock.ExpectQuery(`SELECT .+ FROM "document_chunks" JOIN documents`).
		WillReturnRows(chunkRows(1))

	chunks, err := assembler.FetchChunks(context.Background(), 1, []uint{1, 99})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint(1), chunks[0].ChunkID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContextAssembler_FetchChunks_ScopesByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	assembler := NewContextAssembler(db, nil)

	// user_id是查询的第一个参数，所有权过滤在SQL层完成
	mock.ExpectQuery(`SELECT .+ WHERE documents\.user_id = \$1`).
		WithArgs(int64(42), int64(7)).
		WillReturnRows(chunkRows(7))

	chunks, err := assembler.FetchChunks(context.Background(), 42, []uint{7})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContextAssembler_FetchChunks_Empty(t *testing.T) {
	db, _ := newMockDB(t)
	assembler := NewContextAssembler(db, nil)

	chunks, err := assembler.FetchChunks(context.Background(), 1, nil)

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestContextAssembler_FetchChunks_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	assembler := NewContextAssembler(db, nil)

	mock.ExpectQuery(`SELECT .+ FROM "document_chunks"`).
		WillReturnError(errors.New("connection reset"))

	_, err := assembler.FetchChunks(context.Background(), 1, []uint{1})

	assert.Error(t, err)
}

func TestBuildContext_JoinsWithBlankLines(t *testing.T) {
	chunks := []knowledge.RetrievedChunk{
		{Text: "first part"},
		{Text: "second part"},
	}

	assert.Equal(t, "first part\n\nsecond part", BuildContext(chunks))
}

func TestBuildSources_TruncatesLongExcerpts(t *testing.T) {
	long := strings.Repeat("x", 600)
	chunks := []knowledge.RetrievedChunk{
		{ChunkID: 1, DocumentID: 2, DocumentName: "doc.pdf", Text: long},
		{ChunkID: 3, DocumentID: 2, DocumentName: "doc.pdf", Text: "short"},
	}

	sources := BuildSources(chunks)

	require.Len(t, sources, 2)
	assert.Len(t, sources[0].Text, 503)
	assert.True(t, strings.HasSuffix(sources[0].Text, "..."))
	assert.Equal(t, "short", sources[1].Text)
	assert.Equal(t, uint(1), sources[0].ChunkID)
	assert.Equal(t, "doc.pdf", sources[0].DocumentName)
}

func TestExcerpt_RuneSafe(t *testing.T) {
	// 截断按rune计数，多字节字符不被劈开
	text := strings.Repeat("中", 10)

	result := excerpt(text, 4)

	assert.Equal(t, "中中中中...", result)
}
