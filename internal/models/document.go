package models

import (
	"time"
)

// Document 用户上传的文档表
type Document struct {
	DocumentID  uint      `gorm:"primaryKey;column:document_id" json:"document_id"`
	Name        string    `gorm:"size:500;not null" json:"name"`
	Size        int64     `gorm:"not null" json:"size"`
	TextContent string    `gorm:"type:text;column:text_content" json:"text_content,omitempty"`
	StorageURL  string    `gorm:"size:1000;column:storage_url" json:"storage_url"`
	UserID      uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`

	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 文档分块表，入库后不可变
type DocumentChunk struct {
	ChunkID    uint      `gorm:"primaryKey;column:chunk_id" json:"chunk_id"`
	DocumentID uint      `gorm:"column:document_id;not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`

	Document Document `gorm:"foreignKey:DocumentID" json:"-"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// DocumentVector 分块向量表
// 不变量：vector的document_id必须与其chunk的document_id一致
type DocumentVector struct {
	VectorID   uint      `gorm:"primaryKey;column:vector_id" json:"vector_id"`
	DocumentID uint      `gorm:"column:document_id;not null;index" json:"document_id"`
	ChunkID    uint      `gorm:"column:chunk_id;not null;uniqueIndex" json:"chunk_id"`
	Embedding  string    `gorm:"type:text;not null" json:"-"` // JSON编码的float32数组
	Metadata   string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`

	Chunk DocumentChunk `gorm:"foreignKey:ChunkID" json:"-"`
}

func (DocumentVector) TableName() string {
	return "document_vectors"
}
