package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/core/service"
)

// ViewHandler renders the protected console views. Each view is the data
// the page would show, fetched through the gateway.
type ViewHandler struct {
	gateway ports.Gateway
	status  StatusSource
}

func NewViewHandler(gateway ports.Gateway, status StatusSource) *ViewHandler {
	return &ViewHandler{gateway: gateway, status: status}
}

type viewResponse struct {
	Identity *domain.Identity `json:"identity"`
	Data     json.RawMessage  `json:"data"`
}

func (h *ViewHandler) AdminDashboard(c echo.Context) error {
	return h.render(c, "/api/v1/admin/dashboard/stats")
}

func (h *ViewHandler) InvestigatorDashboard(c echo.Context) error {
	return h.render(c, "/api/v1/cases")
}

func (h *ViewHandler) CaseDetail(c echo.Context) error {
	return h.render(c, "/api/v1/cases/"+url.PathEscape(c.Param("id")))
}

func (h *ViewHandler) render(c echo.Context, path string) error {
	resp, err := h.gateway.Request(c.Request().Context(), path, ports.RequestOptions{Method: http.MethodGet})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return service.DecodeAPIError(resp)
	}

	data, err := readAll(resp)
	if err != nil {
		return err
	}
	if len(data) == 0 || !json.Valid(data) {
		data = []byte("null")
	}

	return c.JSON(http.StatusOK, viewResponse{
		Identity: h.status.Status().Identity,
		Data:     data,
	})
}

func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
