package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/catalog-access/internal/catalog"
	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/transport/http/middleware"
)

type catalogReader interface {
	ListPackages() ([]domain.PackageDefinition, error)
	Resolve(packageID string) (domain.PackageDefinition, error)
	FreePackage() (domain.PackageDefinition, error)
	Build(pkg domain.PackageDefinition) (*catalog.Response, error)
}

type packageAuthorizer interface {
	RequirePackage(user *domain.User, packageID string) error
}

type CatalogHandler struct {
	catalog catalogReader
	access  packageAuthorizer
	logger  *slog.Logger
}

func NewCatalogHandler(catalog catalogReader, access packageAuthorizer, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		access:  access,
		logger:  logger.With("component", "catalog_handler"),
	}
}

type packageSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	IsFree     bool   `json:"is_free"`
	TitleCount int    `json:"title_count"`
}

type listPackagesResponse struct {
	Packages []packageSummary `json:"packages"`
}

// GET /catalog/free
func (h *CatalogHandler) Free(c *gin.Context) {
	pkg, err := h.catalog.FreePackage()
	if err != nil {
		h.catalogError(c, err)
		return
	}
	h.serve(c, pkg)
}

// GET /catalog/packages
// Lists the packages the caller can open.
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	user := middleware.UserFrom(c)

	pkgs, err := h.catalog.ListPackages()
	if err != nil {
		h.catalogError(c, err)
		return
	}

	resp := listPackagesResponse{Packages: []packageSummary{}}
	for _, p := range pkgs {
		if !p.IsFree && h.access.RequirePackage(user, p.ID) != nil {
			continue
		}
		resp.Packages = append(resp.Packages, packageSummary{
			ID:         p.ID,
			Name:       p.Name,
			IsFree:     p.IsFree,
			TitleCount: len(p.TitleIDs),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GET /catalog/packages/:id
func (h *CatalogHandler) GetPackage(c *gin.Context) {
	user := middleware.UserFrom(c)

	pkg, err := h.catalog.Resolve(c.Param("id"))
	if err != nil {
		h.catalogError(c, err)
		return
	}
	if !pkg.IsFree {
		if err := h.access.RequirePackage(user, pkg.ID); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": errPackageForbidden})
			return
		}
	}
	h.serve(c, pkg)
}

func (h *CatalogHandler) serve(c *gin.Context, pkg domain.PackageDefinition) {
	resp, err := h.catalog.Build(pkg)
	if err != nil {
		h.catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CatalogHandler) catalogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrPackageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errPackageNotFound})
	case errors.Is(err, domain.ErrCatalogUnavailable):
		h.logger.ErrorContext(c.Request.Context(), "catalog unavailable", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errCatalogUnavailable})
	default:
		h.logger.ErrorContext(c.Request.Context(), "catalog lookup", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
