package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Document 文档元数据（内容不在这张表，走操作日志 + 快照）
type Document struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	Title     string `gorm:"size:255" json:"title"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Document) TableName() string { return "documents" }

// DocumentStore 文档元数据的 gorm 实现
type DocumentStore struct{ db *gorm.DB }

// InitMySQL 打开 gorm 连接。TranslateError 让唯一键冲突统一成 gorm.ErrDuplicatedKey。
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, doc Document) error {
	err := s.db.WithContext(ctx).Create(&doc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDocumentExists
	}
	return err
}

func (s *DocumentStore) Get(ctx context.Context, docID string) (Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrDocumentNotFound
	}
	return doc, err
}

func (s *DocumentStore) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&docs).Error
	return docs, err
}
