package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/knowdhq/knowd/internal/model"
	"github.com/knowdhq/knowd/internal/pkg/errcode"
	"github.com/knowdhq/knowd/internal/pkg/response"
	"github.com/knowdhq/knowd/internal/service"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type KnowledgeHandler struct {
	search    *service.SearchService
	knowledge *service.KnowledgeService
	extract   *service.ExtractService
	activity  *service.ActivityService
}

func NewKnowledgeHandler(search *service.SearchService, knowledge *service.KnowledgeService, extract *service.ExtractService, activity *service.ActivityService) *KnowledgeHandler {
	return &KnowledgeHandler{search: search, knowledge: knowledge, extract: extract, activity: activity}
}

type searchRequest struct {
	Query   string             `json:"query"`
	Mode    string             `json:"mode"`
	Filters model.SearchFilter `json:"filters"`
	Limit   int                `json:"limit"`
}

func (h *KnowledgeHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = string(model.MatchHybrid)
	}
	if !model.ValidMatchMode(mode) {
		response.Error(c, errcode.ErrInvalid, "mode must be vector, keyword or hybrid")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	ownerID := getUserID(c)
	results, err := h.search.Search(c.Request.Context(), ownerID, model.MatchMode(mode), req.Query, req.Filters, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	h.activity.Log(ownerID, req.Query, model.MatchMode(mode), len(results))
	response.Success(c, gin.H{
		"results":       results,
		"results_count": len(results),
		"timestamp":     time.Now().Unix(),
	})
}

func (h *KnowledgeHandler) Stats(c *gin.Context) {
	overview, err := h.knowledge.Overview(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, overview)
}

type createKnowledgeRequest struct {
	SourceType string   `json:"source_type"`
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Importance *float64 `json:"importance"`
}

func (h *KnowledgeHandler) Create(c *gin.Context) {
	var req createKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	importance := model.DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}
	rec, err := h.knowledge.Create(c.Request.Context(), getUserID(c), service.CreateKnowledgeParams{
		SourceType: req.SourceType,
		Category:   req.Category,
		Title:      req.Title,
		Content:    req.Content,
		Tags:       req.Tags,
		Importance: importance,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *KnowledgeHandler) Get(c *gin.Context) {
	rec, err := h.knowledge.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	if err := h.knowledge.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

type extractRequest struct {
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
}

// Extract is the post-turn hook. It always answers success: a skipped or
// failed extraction must stay invisible to the chat flow.
func (h *KnowledgeHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" && strings.TrimSpace(req.AssistantResponse) == "" {
		response.Error(c, errcode.ErrInvalid, "user_message or assistant_response is required")
		return
	}
	rec := h.extract.ExtractFromTurn(c.Request.Context(), getUserID(c), req.UserMessage, req.AssistantResponse)
	if rec == nil {
		response.Success(c, gin.H{"stored": false})
		return
	}
	response.Success(c, gin.H{"stored": true, "record": rec})
}
