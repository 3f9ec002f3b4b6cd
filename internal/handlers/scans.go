package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scanhub/internal/apperr"
	"scanhub/internal/metrics"
	"scanhub/internal/service"
)

// ScanCallback receives the pipeline's verdict for a scan. The signature
// middleware has already authenticated the request.
func (h HandlerSet) ScanCallback(c *gin.Context) {
	var input service.CallbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, h.log, apperr.Validation(map[string]string{"body": "body must be a JSON object"}))
		return
	}

	scan, err := h.deps.Scans.Complete(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	metrics.RecordScanResult(string(scan.Status))
	c.JSON(http.StatusOK, gin.H{"id": scan.ID, "status": scan.Status})
}
