package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/store"
)

// DocumentHandler 文档生命周期的 REST 薄壳：
// ensure 语义走 Registry，元数据走 gorm 的 DocumentStore。
// 同步本身全在 WebSocket 上，这里只负责建档/列表/健康检查
type DocumentHandler struct {
	registry *collab.Registry
	docs     *store.DocumentStore // 可为 nil（未接元数据库时只建引擎侧文档）
}

func NewDocumentHandler(registry *collab.Registry, docs *store.DocumentStore) *DocumentHandler {
	return &DocumentHandler{registry: registry, docs: docs}
}

type createDocumentRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Initial string `json:"initial"`
}

// CreateDocument POST /documents {id?, title?, initial?} -> {id}
// 已存在同 id 的文档时直接返回该 id（ensure 语义）
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	docID := req.ID
	if docID == "" {
		docID = uuid.NewString()
	}

	if _, err := h.registry.Ensure(c.Request.Context(), docID, req.Initial); err != nil {
		log.Printf("create document id=%s: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_create_doc"})
		return
	}

	if h.docs != nil {
		err := h.docs.Create(c.Request.Context(), store.Document{ID: docID, Title: req.Title})
		if err != nil && !errors.Is(err, store.ErrDocumentExists) {
			log.Printf("create document metadata id=%s: %v", docID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"id": docID})
}

// ListDocuments GET /documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	if h.docs == nil {
		c.JSON(http.StatusOK, gin.H{"documents": []store.Document{}})
		return
	}
	docs, err := h.docs.List(c.Request.Context())
	if err != nil {
		log.Printf("list documents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_list_docs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// Health GET /health
func (h *DocumentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
