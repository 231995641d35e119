package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AnTengye/contracthub/middleware"
	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/AnTengye/contracthub/service"
	"github.com/AnTengye/contracthub/store"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	maxLogLimit        = 500
	fileDeleteParallel = 4
)

type ContractHandler struct {
	workflow       *service.Workflow
	files          service.FileStorage
	maxUploadBytes int64
}

func NewContractHandler(workflow *service.Workflow, files service.FileStorage, maxUploadMB int) *ContractHandler {
	return &ContractHandler{
		workflow:       workflow,
		files:          files,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

type CreateContractRequest struct {
	Title    string `json:"title"`
	Reviewer string `json:"reviewer"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type FeedbackRequest struct {
	Comment string `json:"comment"`
}

// Create creates a DRAFT contract
func (h *ContractHandler) Create(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contract, err := h.workflow.CreateContract(c.Request.Context(), middleware.GetActor(c), req.Title, req.Reviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// List returns the contracts visible to the caller
func (h *ContractHandler) List(c *gin.Context) {
	contracts, err := h.workflow.ListContracts(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// Get returns a single contract
func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.workflow.GetContract(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Delete removes a contract with its versions. Stored files are removed
// afterwards; failures there are only logged.
func (h *ContractHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	versions, err := h.workflow.DeleteContract(ctx, middleware.GetActor(c), id)
	if err != nil {
		writeError(c, err)
		return
	}

	var g errgroup.Group
	g.SetLimit(fileDeleteParallel)
	for _, v := range versions {
		g.Go(func() error {
			h.removeFile(ctx, v.FileRef)
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted", "versions": len(versions)})
}

func (h *ContractHandler) removeFile(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := h.files.Delete(context.WithoutCancel(ctx), ref); err != nil {
		logger.Warn(ctx, "failed to delete stored file", "ref", ref, "error", err)
	}
}

// Upload stores a PDF and registers it as the next version of the contract
func (h *ContractHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(c)
	id := c.Param("id")

	// check visibility and role before accepting the payload
	if !actor.IsAdmin() {
		writeError(c, fmt.Errorf("%w: admin access only", model.ErrForbidden))
		return
	}
	if _, err := h.workflow.GetContract(ctx, actor, id); err != nil {
		writeError(c, err)
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
		return
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if detected := http.DetectContentType(buffer[:n]); !strings.Contains(detected, "pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	filename := filepath.Base(header.Filename)
	ref, err := h.files.Put(ctx, id, filename, file, header.Size, "application/pdf")
	if err != nil {
		logger.Error(ctx, "failed to store file", "contract_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file"})
		return
	}

	version, err := h.workflow.UploadVersion(ctx, actor, id, ref, filename)
	if err != nil {
		h.removeFile(ctx, ref)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, version)
}

// ListVersions returns the versions of a contract, newest first
func (h *ContractHandler) ListVersions(c *gin.Context) {
	versions, err := h.workflow.ListVersions(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// DownloadVersion redirects to a presigned URL of the version's file
func (h *ContractHandler) DownloadVersion(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := h.workflow.GetVersion(ctx, middleware.GetActor(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		writeError(c, err)
		return
	}

	url, err := h.files.URL(ctx, v.FileRef, v.Filename)
	if err != nil {
		logger.Error(ctx, "failed to generate download url", "version_id", v.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// ApproveVersion approves one version
func (h *ContractHandler) ApproveVersion(c *gin.Context) {
	decision, err := h.workflow.ApproveVersion(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// RejectVersion rejects one version with an optional reason
func (h *ContractHandler) RejectVersion(c *gin.Context) {
	var req RejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	decision, err := h.workflow.RejectVersion(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("versionId"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// Feedback records a comment on a version
func (h *ContractHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.workflow.FeedbackOnVersion(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("versionId"), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Feedback recorded"})
}

// VersionLogs returns the audit entries of a version and the contract's feedback
func (h *ContractHandler) VersionLogs(c *gin.Context) {
	logs, err := h.workflow.VersionLogs(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Approve is the legacy whole-contract approval
func (h *ContractHandler) Approve(c *gin.Context) {
	contract, err := h.workflow.ApproveContract(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Reject is the legacy whole-contract rejection
func (h *ContractHandler) Reject(c *gin.Context) {
	var req RejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	contract, err := h.workflow.RejectContract(c.Request.Context(), middleware.GetActor(c), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Logs returns the audit trail of a contract
func (h *ContractHandler) Logs(c *gin.Context) {
	q, err := parseAuditQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	logs, err := h.workflow.ContractLogs(c.Request.Context(), middleware.GetActor(c), c.Param("id"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// bindOptionalJSON decodes the body when one was sent.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return false
	}
	return true
}

// parseAuditQuery reads scope, action, actor, since, until and limit.
func parseAuditQuery(c *gin.Context) (store.AuditQuery, error) {
	var q store.AuditQuery

	switch scope := c.Query("scope"); scope {
	case "", "all":
	case "versions":
		q.VersionScopedOnly = true
	default:
		return q, fmt.Errorf("%w: unknown scope %q", model.ErrValidation, scope)
	}

	for _, raw := range c.QueryArray("action") {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			a, ok := model.ParseAction(strings.ToUpper(s))
			if !ok {
				return q, fmt.Errorf("%w: unknown action %q", model.ErrValidation, s)
			}
			q.Actions = append(q.Actions, a)
		}
	}

	q.ActorID = c.Query("actor")

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		s := c.Query(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("%w: %s must be RFC3339", model.ErrValidation, p.name)
		}
		*p.dst = t
	}

	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, fmt.Errorf("%w: limit must be a positive integer", model.ErrValidation)
		}
		q.Limit = min(n, maxLogLimit)
	}

	return q, nil
}
