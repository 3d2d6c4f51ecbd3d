package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/report-agent/pkg/archive"
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

var (
	mcpSessions = make(map[string]*MCPSession)
	sessionMu   sync.RWMutex
)

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Handler struct {
	Service *Service
	Archive *archive.Archive
}

func NewHandler(s *Service, a *archive.Archive) *Handler {
	return &Handler{Service: s, Archive: a}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/mcp", h.MCPHandler)
	api := r.Group("/api")
	{
		api.POST("/reports", h.createJob)
		api.GET("/reports", h.listJobs)
		api.GET("/reports/:id", h.getJob)
		api.GET("/reports/:id/state", h.getJobState)
		api.GET("/reports/:id/logs", h.getJobLogs)

		api.POST("/archive/search", h.searchArchive)
	}
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &MCPError{
				Code:    -32700,
				Message: "Parse error",
			},
		})
		return
	}

	// Handle initialize request
	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()
			c.Header("Mcp-Session-Id", sessionID)

			sessionMu.Lock()
			mcpSessions[sessionID] = &MCPSession{
				ID:      sessionID,
				Created: time.Now().Unix(),
			}
			sessionMu.Unlock()
		}

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"serverInfo": map[string]interface{}{
					"name":    "report-agent-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
			},
		})
		return
	}

	// Validate session for other requests
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Bad Request: No valid session ID provided",
			},
		})
		return
	}

	sessionMu.RLock()
	_, exists := mcpSessions[sessionID]
	sessionMu.RUnlock()

	if !exists {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Invalid session ID",
			},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(c, req)
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		})
	default:
		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: "Method not found",
			},
		})
	}
}

func (h *Handler) handleToolsList(c *gin.Context, req MCPRequest) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": []map[string]interface{}{
				{
					"name":        "search_archive",
					"description": "Search archived report content using semantic search.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"query": map[string]interface{}{
								"type":        "string",
								"description": "The search query.",
							},
							"topK": map[string]interface{}{
								"type":        "number",
								"description": "The number of top results to return.",
								"default":     5,
							},
							"topic": map[string]interface{}{
								"type":        "string",
								"description": "Restrict results to one report topic.",
							},
						},
						"required": []string{"query"},
					},
				},
				{
					"name":        "get_topic_content",
					"description": "Return all archived content for a report topic.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"topic": map[string]interface{}{
								"type":        "string",
								"description": "The report topic to fetch content for.",
							},
						},
						"required": []string{"topic"},
					},
				},
				{
					"name":        "find_chunks_by_metadata",
					"description": "Find archived chunks using logical filters on metadata.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"filter": map[string]interface{}{
								"type":        "object",
								"description": "JSON filter object with logical operators ($and, $or, $not)",
							},
						},
						"required": []string{"filter"},
					},
				},
			},
		},
	})
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, -32602, "Invalid params")
		return
	}

	if h.Archive == nil {
		h.sendError(c, req.ID, -32603, "Archive is not configured on this server")
		return
	}

	switch params.Name {
	case "search_archive":
		var args struct {
			Query string `json:"query"`
			TopK  int    `json:"topK"`
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		results, err := h.Archive.Search(c.Request.Context(), args.Query, args.TopK, args.Topic)
		if err != nil {
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		h.sendResult(c, req.ID, archive.FormatResults(results))

	case "get_topic_content":
		var args struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		content, err := h.Archive.TopicContent(c.Request.Context(), args.Topic)
		if err != nil {
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		h.sendResult(c, req.ID, content)

	case "find_chunks_by_metadata":
		var args struct {
			Filter map[string]interface{} `json:"filter"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		chunks, err := h.Archive.Store.GetByMetadata(c.Request.Context(), args.Filter)
		if err != nil {
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		data, err := json.Marshal(chunks)
		if err != nil {
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		h.sendResult(c, req.ID, string(data))

	default:
		h.sendError(c, req.ID, -32601, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

func (h *Handler) sendError(c *gin.Context, id interface{}, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: msg,
		},
	})
}

func (h *Handler) sendResult(c *gin.Context, id interface{}, text string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	})
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobState(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	state, err := h.Service.GetJobState(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.Data(http.StatusOK, "application/json", state)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) searchArchive(c *gin.Context) {
	if h.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive is not configured"})
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
		Topic string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	results, err := h.Archive.Search(c.Request.Context(), req.Query, req.TopK, req.Topic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{
			"content":  r.Chunk.Content,
			"metadata": r.Chunk.Metadata,
			"score":    r.Score,
		})
	}
	c.JSON(http.StatusOK, out)
}
