package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arclight-project/arclight/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func pagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("pageNumber", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func paginate[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// handleListAccounts returns a page of known account ids.
func (s *Server) handleListAccounts(c *gin.Context) {
	keys, err := s.store.Accounts().Keys()
	if err != nil {
		log.Error().Err(err).Msg("account listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	page, size := pagination(c)
	c.JSON(http.StatusOK, gin.H{
		"accounts":   paginate(keys, page, size),
		"pageNumber": page,
		"pageSize":   size,
		"totalCount": len(keys),
	})
}

// handleCreateAccount creates or overwrites an account from a platform
// id and display name.
func (s *Server) handleCreateAccount(c *gin.Context) {
	var req struct {
		UserID      string `json:"userId" binding:"required"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.UserID
	}

	doc := storage.NewAccountDocument(req.UserID, req.DisplayName)
	if err := s.store.Accounts().Set(req.UserID, doc); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("account create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusCreated, json.RawMessage(doc))
}

func (s *Server) handleGetAccount(c *gin.Context) {
	doc, err := s.store.Accounts().Get(c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", c.Param("id")).Msg("account fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

// handlePatchAccount deep-merges the request body into the stored
// account document. Objects merge recursively, arrays replace, an
// explicit null overwrites.
func (s *Server) handlePatchAccount(c *gin.Context) {
	patch, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil || !json.Valid(patch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON document"})
		return
	}

	userID := c.Param("id")
	target, err := s.store.Accounts().Get(userID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("account fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	merged, err := storage.Merge(target, patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The embedded platform id must keep matching the storage key.
	if mergedID, _, err := storage.AccountIdentity(merged); err != nil || mergedID != userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account document platform id mismatch"})
		return
	}

	if err := s.store.Accounts().Set(userID, merged); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("account update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.Data(http.StatusOK, "application/json", merged)
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	if err := s.store.Accounts().Delete(c.Param("id")); err != nil {
		log.Error().Err(err).Str("user_id", c.Param("id")).Msg("account delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}
