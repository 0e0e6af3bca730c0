package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/actuarial-tools/asopd/provider"
)

type AnalyzeHandler struct {
	LLM provider.Provider
}

func (h *AnalyzeHandler) Register(e *echo.Echo) {
	e.POST("/analyze", h.analyze)
}

// analyze runs the compliance analysis over caller-supplied text, bypassing
// extraction. Useful for memorandums already held as plain text.
func (h *AnalyzeHandler) analyze(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return httpError(http.StatusBadRequest, "bad_request", "text required")
	}

	analysis, err := h.LLM.AnalyzeCompliance(c.Request().Context(), req.Text)
	if err != nil {
		var ae *provider.AnalysisError
		if errors.As(err, &ae) && ae.Retriable {
			return httpError(http.StatusGatewayTimeout, "analysis_unavailable", err.Error())
		}
		return httpError(http.StatusBadGateway, "analysis_failed", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"analysis": analysis})
}
