package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/forenvision/case-console/internal/core/ports"
)

const apiPrefix = "/api/v1/"

// forwardedHeaders are copied from the API answer back to the caller.
var forwardedHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderContentDisposition,
	echo.HeaderLastModified,
	"ETag",
}

// ProxyHandler relays console calls to the API through the gateway, so every
// call gets the bearer token and the 401/403 handling.
type ProxyHandler struct {
	gateway ports.Gateway
}

func NewProxyHandler(gateway ports.Gateway) *ProxyHandler {
	return &ProxyHandler{gateway: gateway}
}

// Relay forwards ANY /api/v1/* as-is.
//
// @Summary      API pass-through
// @Tags         proxy
// @Success      200
// @Failure      401  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /api/v1/{path} [get]
func (h *ProxyHandler) Relay(c echo.Context) error {
	req := c.Request()
	opts := ports.RequestOptions{Method: req.Method, Header: http.Header{}}
	if ct := req.Header.Get(echo.HeaderContentType); ct != "" {
		opts.Header.Set(echo.HeaderContentType, ct)
	}
	if accept := req.Header.Get(echo.HeaderAccept); accept != "" {
		opts.Header.Set(echo.HeaderAccept, accept)
	}
	if req.ContentLength != 0 {
		opts.Body = req.Body
	}

	resp, err := h.gateway.Request(req.Context(), targetPath(c), opts)
	if err != nil {
		return err
	}
	return relayResponse(c, resp)
}

// Upload rebuilds the incoming multipart form and posts it through the
// gateway.
//
// @Summary      Upload pass-through
// @Tags         proxy
// @Accept       multipart/form-data
// @Success      200
// @Failure      400  {object}  errorResponse
// @Router       /upload/{path} [post]
func (h *ProxyHandler) Upload(c echo.Context) error {
	mf, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart/form-data")
	}
	defer mf.RemoveAll()

	form := &ports.UploadForm{Fields: make(map[string]string, len(mf.Value))}
	for k, vs := range mf.Value {
		if len(vs) > 0 {
			form.Fields[k] = vs[0]
		}
	}

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for field, headers := range mf.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable file part "+field)
			}
			opened = append(opened, f)
			form.Files = append(form.Files, ports.FormFile{Field: field, Filename: fh.Filename, Content: f})
		}
	}

	resp, err := h.gateway.Upload(c.Request().Context(), apiPrefix+c.Param("*"), form)
	if err != nil {
		return err
	}
	return relayResponse(c, resp)
}

func targetPath(c echo.Context) string {
	path := apiPrefix + c.Param("*")
	if q := c.QueryString(); q != "" {
		path += "?" + q
	}
	return path
}

func relayResponse(c echo.Context, resp *http.Response) error {
	defer resp.Body.Close()

	for _, h := range forwardedHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Response().Header().Set(h, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err := io.Copy(c.Response(), resp.Body)
	return err
}
