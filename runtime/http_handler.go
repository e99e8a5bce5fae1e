package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
)

// TriggerWebhook is the trigger type that exposes a workflow on its own route.
const TriggerWebhook = "webhook"

type HttpHandler struct {
	app *App
	l   *slog.Logger
}

// NewRouter builds the gin engine serving the management API and any
// webhook triggers of the workflows currently registered.
func NewRouter(ctx context.Context, app *App, l *slog.Logger) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, _ *slog.Logger) *slog.Logger {
			return l
		}),
	))

	h := &HttpHandler{app: app, l: l}

	router.GET("/health", h.handleHealth)
	router.GET("/workflows", h.handleListWorkflows)
	router.GET("/workflows/:id", h.handleGetWorkflow)
	router.POST("/workflows/:id/execute", h.handleExecute)
	router.GET("/executions", h.handleListExecutions)
	router.GET("/executions/:id", h.handleGetExecution)
	router.GET("/executions/:id/steps", h.handleListSteps)
	router.POST("/executions/:id/cancel", h.handleCancel)

	if err := h.registerWebhooks(ctx, router); err != nil {
		return nil, err
	}
	return router, nil
}

func (h *HttpHandler) registerWebhooks(ctx context.Context, router *gin.Engine) error {
	workflows, err := h.app.Workflows.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}

	for _, wf := range workflows {
		if wf.Trigger.Type != TriggerWebhook {
			continue
		}
		method, path := webhookRoute(wf)
		h.l.InfoContext(ctx, fmt.Sprintf("Registering webhook trigger for %s: %s %s", wf.ID, method, path))

		switch method {
		case http.MethodGet:
			router.GET(path, h.handleWebhook(wf.ID))
		case http.MethodPost:
			router.POST(path, h.handleWebhook(wf.ID))
		default:
			return fmt.Errorf("workflow %s: webhook method %s is not supported", wf.ID, method)
		}
	}
	return nil
}

func webhookRoute(wf Workflow) (string, string) {
	method, path := http.MethodPost, "/hooks/"+wf.ID
	if m, ok := wf.Trigger.Config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if p, ok := wf.Trigger.Config["path"].(string); ok && p != "" {
		path = p
	}
	return method, path
}

func (h *HttpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": len(h.app.Executor.Running()),
	})
}

func (h *HttpHandler) handleListWorkflows(c *gin.Context) {
	workflows, err := h.app.Workflows.ListWorkflows(c.Request.Context())
	if err != nil {
		h.internalError(c, "list workflows", err)
		return
	}
	c.JSON(http.StatusOK, workflows)
}

func (h *HttpHandler) handleGetWorkflow(c *gin.Context) {
	wf, err := h.app.Workflows.GetWorkflow(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrWorkflowNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, "get workflow", err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *HttpHandler) handleExecute(c *gin.Context) {
	trigger, ok := readTrigger(c)
	if !ok {
		return
	}
	h.execute(c, c.Param("id"), trigger)
}

func (h *HttpHandler) handleWebhook(workflowID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		trigger, ok := readTrigger(c)
		if !ok {
			return
		}
		if len(c.Request.URL.Query()) > 0 {
			query := make(map[string]any)
			for k := range c.Request.URL.Query() {
				query[k] = c.Query(k)
			}
			trigger["query"] = query
		}
		h.execute(c, workflowID, trigger)
	}
}

// execute runs the workflow detached from the request so a client that
// hangs up does not abort it. Runs are cancelled through /executions/:id/cancel.
func (h *HttpHandler) execute(c *gin.Context, workflowID string, trigger map[string]any) {
	execution, err := h.app.Executor.Execute(context.WithoutCancel(c.Request.Context()), workflowID, trigger)
	if errors.Is(err, ErrWorkflowNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	if errors.Is(err, ErrExecutorClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, "start execution", err)
		return
	}

	result := execution.Result()
	if result.Status == StatusFailed {
		h.l.ErrorContext(c.Request.Context(), "Workflow execution failed",
			"workflow", workflowID,
			"execution", result.ExecutionID,
			"kind", result.ErrorKind,
			"error", result.Error)
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleListExecutions lists the ids of runs in progress on this instance.
// Finished runs are read one at a time through /executions/:id.
func (h *HttpHandler) handleListExecutions(c *gin.Context) {
	if status := c.DefaultQuery("status", string(StatusRunning)); status != string(StatusRunning) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "only status=running can be listed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": h.app.Executor.Running()})
}

func (h *HttpHandler) handleGetExecution(c *gin.Context) {
	record, err := h.app.Executions.GetExecution(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrExecutionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, "get execution", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *HttpHandler) handleListSteps(c *gin.Context) {
	if h.app.StepLogs == nil {
		c.JSON(http.StatusOK, []StepLogEntry{})
		return
	}
	entries, err := h.app.StepLogs.ListStepLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "list step logs", err)
		return
	}
	if entries == nil {
		entries = []StepLogEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *HttpHandler) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if !h.app.Executor.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"message": "no running execution " + id})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"executionId": id, "status": "cancelling"})
}

var wrongBodyFormatRes = gin.H{"message": "Wrong request body format"}

// readTrigger parses an optional JSON object body into trigger data.
func readTrigger(c *gin.Context) (map[string]any, bool) {
	trigger := make(map[string]any)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
		return nil, false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return trigger, true
	}
	if err := json.Unmarshal(body, &trigger); err != nil {
		c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
		return nil, false
	}
	if trigger == nil {
		trigger = make(map[string]any)
	}
	return trigger, true
}

func (h *HttpHandler) internalError(c *gin.Context, action string, err error) {
	h.l.ErrorContext(c.Request.Context(), fmt.Sprintf("Failed to %s", action),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
}
