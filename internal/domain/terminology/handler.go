package terminology

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medterm/medterm/internal/platform/auth"
	"github.com/medterm/medterm/internal/platform/middleware"
	"github.com/medterm/medterm/pkg/pagination"
)

// Handler provides REST endpoints for text normalization and catalog
// management.
type Handler struct {
	svc *Service
}

// NewHandler creates a new terminology handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers normalization routes on the API group. Catalog
// mutation and audit listing require the admin role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/normalize", h.Normalize)
	api.POST("/forbidden/scan", h.ScanForbidden)
	api.POST("/symbols/normalize", h.NormalizeSymbols)
	api.POST("/scientific-names/italicize", h.ItalicizeScientificNames)
	api.POST("/abbreviations/check", h.CheckAbbreviation)
	api.GET("/catalog", h.GetCatalog)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/catalog/reload", h.ReloadCatalog)
	admin.GET("/catalog/versions", h.ListCatalogVersions)
	admin.POST("/catalog/versions", h.PublishCatalog)
	admin.POST("/catalog/versions/:version/activate", h.ActivateCatalogVersion)
	admin.GET("/audit", h.ListAudit)
}

// TextRequest is the body of the text endpoints.
type TextRequest struct {
	Text string `json:"text"`
}

// TextResponse wraps a rewritten text.
type TextResponse struct {
	Text string `json:"text"`
}

// AbbreviationRequest is the body of POST /abbreviations/check.
type AbbreviationRequest struct {
	Text         string `json:"text"`
	Abbreviation string `json:"abbreviation"`
}

// toHTTPError maps service errors onto status codes.
func toHTTPError(err error) error {
	var cfgErr *ConfigurationError
	var ruleErr *RuleError
	switch {
	case errors.Is(err, ErrInputTooLong):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &cfgErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrCatalogNotLoaded), errors.Is(err, ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrCatalogNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrVersionExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &ruleErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "normalization failed").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func bindText(c echo.Context) (string, error) {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return req.Text, nil
}

// Normalize handles POST /api/v1/normalize.
func (h *Handler) Normalize(c echo.Context) error {
	text, err := bindText(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Normalize(c.Request().Context(), NormalizeRequest{
		Text:      text,
		RequestID: middleware.GetRequestID(c),
		UserID:    auth.UserIDFromContext(c.Request().Context()),
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ScanForbidden handles POST /api/v1/forbidden/scan.
func (h *Handler) ScanForbidden(c echo.Context) error {
	text, err := bindText(c)
	if err != nil {
		return err
	}
	scan, err := h.svc.ScanForbidden(c.Request().Context(), text)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, scan)
}

// NormalizeSymbols handles POST /api/v1/symbols/normalize.
func (h *Handler) NormalizeSymbols(c echo.Context) error {
	text, err := bindText(c)
	if err != nil {
		return err
	}
	out, err := h.svc.NormalizeSymbols(text)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, TextResponse{Text: out})
}

// ItalicizeScientificNames handles POST /api/v1/scientific-names/italicize.
func (h *Handler) ItalicizeScientificNames(c echo.Context) error {
	text, err := bindText(c)
	if err != nil {
		return err
	}
	out, err := h.svc.ItalicizeScientificNames(text)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, TextResponse{Text: out})
}

// CheckAbbreviation handles POST /api/v1/abbreviations/check.
func (h *Handler) CheckAbbreviation(c echo.Context) error {
	var req AbbreviationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Abbreviation) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "abbreviation is required")
	}
	res, err := h.svc.CheckAbbreviation(c.Request().Context(), req.Text, req.Abbreviation)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetCatalog handles GET /api/v1/catalog.
func (h *Handler) GetCatalog(c echo.Context) error {
	info, err := h.svc.CatalogInfo(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// ReloadCatalog handles POST /api/v1/catalog/reload.
func (h *Handler) ReloadCatalog(c echo.Context) error {
	info, err := h.svc.Reload(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// ListCatalogVersions handles GET /api/v1/catalog/versions.
func (h *Handler) ListCatalogVersions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCatalogVersions(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*CatalogVersion{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}

// PublishCatalog handles POST /api/v1/catalog/versions. The body is the raw
// catalog document; its Content-Type selects JSON or YAML.
func (h *Handler) PublishCatalog(c echo.Context) error {
	doc, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read request body")
	}
	if len(doc) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "catalog document is required")
	}
	activate, _ := strconv.ParseBool(c.QueryParam("activate"))

	v, err := h.svc.PublishCatalog(c.Request().Context(), PublishRequest{
		Document:  doc,
		Format:    formatFromContentType(c.Request().Header.Get(echo.HeaderContentType)),
		Activate:  activate,
		CreatedBy: auth.UserIDFromContext(c.Request().Context()),
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func formatFromContentType(ct string) Format {
	if strings.Contains(strings.ToLower(ct), "json") {
		return FormatJSON
	}
	return FormatYAML
}

// ActivateCatalogVersion handles POST /api/v1/catalog/versions/:version/activate.
func (h *Handler) ActivateCatalogVersion(c echo.Context) error {
	v, err := h.svc.ActivateCatalogVersion(c.Request().Context(), c.Param("version"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// ListAudit handles GET /api/v1/audit.
func (h *Handler) ListAudit(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAudit(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*AuditRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}
