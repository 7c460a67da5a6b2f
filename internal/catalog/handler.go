// Package catalog serves the public product browsing API and the health
// endpoint.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/pkg/models"
)

// CatalogStore is the read-only slice of the store this handler uses.
type CatalogStore interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, category string) ([]*models.Product, error)
	SearchProducts(ctx context.Context, term string) ([]*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CountProducts(ctx context.Context) (int, error)
	Ping() error
}

// Features reports which optional integrations are configured, surfaced on
// the health endpoint so a deploy with missing credentials is visible.
type Features struct {
	Payments       bool `json:"payments"`
	WebhookSigning bool `json:"webhook_signing"`
	Email          bool `json:"email"`
	Printful       bool `json:"printful"`
	Eprolo         bool `json:"eprolo"`
	Zendrop        bool `json:"zendrop"`
}

type Handler struct {
	catalog  CatalogStore
	features Features
	logger   *logrus.Logger
}

func NewHandler(catalog CatalogStore, features Features, logger *logrus.Logger) *Handler {
	return &Handler{
		catalog:  catalog,
		features: features,
		logger:   logger,
	}
}

// ListProducts returns active products, optionally filtered by ?category=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	products, err := h.catalog.ListProducts(r.Context(), category)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list products")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to load products")
		return
	}
	if products == nil {
		products = []*models.Product{}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"products": products,
		"count":    len(products),
	})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err == store.ErrProductNotFound {
		h.respondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("product_id", id).Error("Failed to load product")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to load product")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"product": product,
	})
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list categories")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to load categories")
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"categories": categories,
	})
}

// Search matches product names and descriptions against ?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing search term")
		return
	}

	products, err := h.catalog.SearchProducts(r.Context(), term)
	if err != nil {
		h.logger.WithError(err).Error("Product search failed")
		h.respondWithError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	if products == nil {
		products = []*models.Product{}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"products": products,
		"count":    len(products),
		"query":    term,
	})
}

// Health reports database reachability and which integrations are live. The
// endpoint stays 200 with connected=false rather than failing the probe, so
// the edge keeps serving cached catalog pages during a database blip.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := map[string]interface{}{"connected": false}

	if err := h.catalog.Ping(); err != nil {
		h.logger.WithError(err).Warn("Health check: database unreachable")
	} else {
		dbStatus["connected"] = true
		if count, err := h.catalog.CountProducts(r.Context()); err == nil {
			dbStatus["products"] = count
		}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"database": dbStatus,
		"features": h.features,
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
