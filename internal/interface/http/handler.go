package http

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

// Handler wires the HTTP transport to the inference service.
type Handler struct {
	svc    *inference.Service
	logger *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(svc *inference.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With("component", "http.handler"),
	}
}

// CreateForum accepts a multipart CSV export and registers a forum.
func (h *Handler) CreateForum(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "file is required", err))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read upload", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "upload_failed", "failed to read file", err))
		return
	}

	forum, err := h.svc.CreateForum(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		abortWithError(c, serviceError(err, "create_forum_failed"))
		return
	}
	c.JSON(http.StatusCreated, forum)
}

// ListForums returns all registered forums.
func (h *Handler) ListForums(c *gin.Context) {
	forums, err := h.svc.ListForums(c.Request.Context())
	if err != nil {
		abortWithError(c, serviceError(err, "fetch_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"forums": forums})
}

// GetForum returns forum metadata plus its normalized top-level posts.
func (h *Handler) GetForum(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	forum, posts, err := h.svc.GetForumPosts(c.Request.Context(), forumID)
	if err != nil {
		abortWithError(c, serviceError(err, "fetch_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    forum.ID,
		"name":  forum.Name,
		"posts": posts,
	})
}

// GetPost returns a single top-level post.
func (h *Handler) GetPost(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	postID, err := strconv.ParseInt(c.Param("postId"), 10, 64)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid post id", err))
		return
	}
	post, err := h.svc.GetPost(c.Request.Context(), forumID, postID)
	if err != nil {
		abortWithError(c, serviceError(err, "fetch_failed"))
		return
	}
	c.JSON(http.StatusOK, post)
}

// DeleteForum removes a forum together with its blob and artifact.
func (h *Handler) DeleteForum(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteForum(c.Request.Context(), forumID); err != nil {
		abortWithError(c, serviceError(err, "delete_failed"))
		return
	}
	c.Status(http.StatusNoContent)
}

type buildPayload struct {
	Questions []string `json:"questions"`
}

// BuildInferences runs the QA + embedding batch for a forum.
func (h *Handler) BuildInferences(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	var req buildPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	result, err := h.svc.BuildInferences(c.Request.Context(), forumID, req.Questions)
	if err != nil {
		abortWithError(c, serviceError(err, "build_failed"))
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetInferences returns the forum's persisted artifact.
func (h *Handler) GetInferences(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	artifact, err := h.svc.GetInferences(c.Request.Context(), forumID)
	if err != nil {
		abortWithError(c, serviceError(err, "fetch_failed"))
		return
	}
	c.JSON(http.StatusOK, artifact)
}

// DeleteInferences removes the forum's artifact.
func (h *Handler) DeleteInferences(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteInferences(c.Request.Context(), forumID); err != nil {
		abortWithError(c, serviceError(err, "delete_failed"))
		return
	}
	c.Status(http.StatusNoContent)
}

type relationsPayload struct {
	Question        string  `json:"question"`
	PostID          string  `json:"post_id"`
	Similarity      float64 `json:"similarity"`
	IncludeBaseline *bool   `json:"include_baseline"`
}

// RankRelations lists posts whose answers are similar to the baseline post's.
func (h *Handler) RankRelations(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	var req relationsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if req.Question == "" || req.PostID == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "question and post_id are required", nil))
		return
	}
	relations, err := h.svc.Rank(c.Request.Context(), forumID, req.Question, req.PostID, req.Similarity, req.IncludeBaseline)
	if err != nil {
		abortWithError(c, serviceError(err, "rank_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

type targetedQAPayload struct {
	Question string   `json:"question"`
	PostIDs  []string `json:"post_ids"`
}

// TargetedQA answers one ad hoc question for a subset of posts.
func (h *Handler) TargetedQA(c *gin.Context) {
	forumID, ok := parseForumID(c)
	if !ok {
		return
	}
	var req targetedQAPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	answers, err := h.svc.TargetedQA(c.Request.Context(), forumID, req.Question, req.PostIDs)
	if err != nil {
		abortWithError(c, serviceError(err, "qa_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}

func parseForumID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid forum id", err))
		return uuid.Nil, false
	}
	return id, true
}

// serviceError maps domain error codes onto HTTP statuses.
func serviceError(err error, fallbackCode string) *HTTPError {
	status := http.StatusInternalServerError
	code := fallbackCode
	switch {
	case apperrors.IsCode(err, "invalid_input"), apperrors.IsCode(err, "malformed_input"):
		status = http.StatusBadRequest
		code = "invalid_request"
	case apperrors.IsCode(err, "not_found"):
		status = http.StatusNotFound
		code = "not_found"
	case apperrors.IsCode(err, "duplicate_artifact"):
		status = http.StatusConflict
		code = "duplicate_artifact"
	case apperrors.IsCode(err, "unknown_question"):
		status = http.StatusNotFound
		code = "unknown_question"
	case apperrors.IsCode(err, "unknown_post"):
		status = http.StatusNotFound
		code = "unknown_post"
	case apperrors.IsCode(err, "dimension_mismatch"):
		status = http.StatusUnprocessableEntity
		code = "dimension_mismatch"
	case apperrors.IsCode(err, "qa_error"), apperrors.IsCode(err, "embedding_error"):
		status = http.StatusBadGateway
	}
	return NewHTTPError(status, code, errMessage(err), err)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
