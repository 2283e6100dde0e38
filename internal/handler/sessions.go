package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/procura/api/internal/catalog"
	"github.com/procura/api/internal/matcher"
	"github.com/procura/api/internal/middleware"
	"github.com/procura/api/internal/orderlist"
	"github.com/procura/api/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SessionService is the session API used by the handlers.
// Satisfied by *service.Service.
type SessionService interface {
	Open(ctx context.Context, req service.OpenRequest) (service.Snapshot, error)
	CanWatch(id uuid.UUID, userID, role string) bool
	Snapshot(id uuid.UUID) (service.Snapshot, error)
	Categories(id uuid.UUID) ([]catalog.CategoryOption, error)
	ItemsForCategory(id uuid.UUID, category string) ([]catalog.ItemOption, error)
	Search(id uuid.UUID, text, category string) ([]matcher.RankedMatch, error)
	AddItem(ctx context.Context, id uuid.UUID, req service.AddItemRequest) (orderlist.LineItem, error)
	EditItem(ctx context.Context, id uuid.UUID, itemID string, p orderlist.Patch) (orderlist.LineItem, bool, error)
	DeleteItem(ctx context.Context, id uuid.UUID, itemID string) (orderlist.LineItem, bool, error)
	Undo(ctx context.Context, id uuid.UUID) (orderlist.LineItem, bool, error)
	QuickAdd(ctx context.Context, id uuid.UUID, category, text string) (service.QuickAddResult, error)
	Submit(ctx context.Context, id uuid.UUID) (service.SubmitResult, error)
	Close(id uuid.UUID) error
}

// SessionHandler exposes editing sessions over HTTP.
type SessionHandler struct {
	svc SessionService
	log logrus.FieldLogger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(svc SessionService, log logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{svc: svc, log: log}
}

// RegisterRoutes registers session endpoints on the given Chi router.
// Expected to be mounted at /sessions behind authentication.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Open)
	r.Route("/{id}", func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/", h.Get)
		r.Delete("/", h.Abandon)
		r.Get("/categories", h.Categories)
		r.Get("/items", h.Items)
		r.Get("/search", h.Search)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemID}", h.EditItem)
		r.Delete("/items/{itemID}", h.DeleteItem)
		r.Post("/undo", h.Undo)
		r.Post("/quick-add", h.QuickAdd)
		r.Post("/submit", h.Submit)
	})
}

// --- Request / Response types ---

type openSessionRequest struct {
	Mode        string `json:"mode" validate:"required,oneof=create edit resolve"`
	WorkPackage string `json:"work_package" validate:"required_if=Mode create"`
	Project     string `json:"project"`
	Document    string `json:"document" validate:"required_unless=Mode create"`
}

type addItemRequest struct {
	Category string          `json:"category" validate:"required"`
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name" validate:"required_without=ItemID"`
	Unit     string          `json:"unit"`
	Quantity decimal.Decimal `json:"quantity"`
	Comment  string          `json:"comment" validate:"max=500"`
}

type editItemRequest struct {
	Name     *string          `json:"name" validate:"omitempty,min=1"`
	Unit     *string          `json:"unit" validate:"omitempty,min=1"`
	Category *string          `json:"category" validate:"omitempty,min=1"`
	Quantity *decimal.Decimal `json:"quantity"`
	Comment  *string          `json:"comment" validate:"omitempty,max=500"`
}

type quickAddRequest struct {
	Category string `json:"category" validate:"required"`
	Text     string `json:"text" validate:"required,max=20000"`
}

type itemResponse struct {
	Item    *orderlist.LineItem `json:"item,omitempty"`
	Changed bool                `json:"changed"`
	Session service.Snapshot    `json:"session"`
}

type quickAddResponse struct {
	service.QuickAddResult
	Session service.Snapshot `json:"session"`
}

// --- Middleware ---

type sessionKey struct{}

// requireSession resolves {id} and hides sessions the caller may not see.
func (h *SessionHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
			return
		}
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		if !h.svc.CanWatch(id, claims.UserID, claims.Role) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": service.ErrSessionNotFound.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

func sessionID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(sessionKey{}).(uuid.UUID)
	return id
}

// --- Handlers ---

// Open starts a new editing session for the caller.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req openSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	snap, err := h.svc.Open(r.Context(), service.OpenRequest{
		Mode:        req.Mode,
		WorkPackage: req.WorkPackage,
		Project:     req.Project,
		Document:    req.Document,
		UserID:      claims.UserID,
	})
	if err != nil {
		writeServiceError(w, h.log, "open", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// Get returns the session snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(sessionID(r))
	if err != nil {
		writeServiceError(w, h.log, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Abandon discards the session without saving.
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Close(sessionID(r)); err != nil {
		writeServiceError(w, h.log, "close", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories lists the categories of the session's work package.
func (h *SessionHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(sessionID(r))
	if err != nil {
		writeServiceError(w, h.log, "categories", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// Items lists catalog items, filtered by ?category= when given.
func (h *SessionHandler) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ItemsForCategory(sessionID(r), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, h.log, "items", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Search ranks catalog items resembling ?q=, optionally within ?category=.
func (h *SessionHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matches, err := h.svc.Search(sessionID(r), q.Get("q"), q.Get("category"))
	if err != nil {
		writeServiceError(w, h.log, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// AddItem adds a catalog or ad-hoc item to the order list.
func (h *SessionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := sessionID(r)
	item, err := h.svc.AddItem(r.Context(), id, service.AddItemRequest{
		Category:  req.Category,
		CatalogID: req.ItemID,
		Name:      req.Name,
		Unit:      req.Unit,
		Quantity:  req.Quantity,
		Comment:   req.Comment,
	})
	if err != nil {
		writeServiceError(w, h.log, "add", err)
		return
	}
	h.writeItem(w, http.StatusCreated, id, &item, true)
}

// EditItem applies a partial update to a line item.
func (h *SessionHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	var req editItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := sessionID(r)
	item, changed, err := h.svc.EditItem(r.Context(), id, chi.URLParam(r, "itemID"), orderlist.Patch{
		Comment:  req.Comment,
		Quantity: req.Quantity,
		Unit:     req.Unit,
		Label:    req.Name,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, h.log, "edit", err)
		return
	}
	h.writeItem(w, http.StatusOK, id, &item, changed)
}

// DeleteItem removes a line item. Unknown items are ignored.
func (h *SessionHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	item, deleted, err := h.svc.DeleteItem(r.Context(), id, chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(w, h.log, "delete", err)
		return
	}
	h.writeItem(w, http.StatusOK, id, itemOrNil(item, deleted), deleted)
}

// Undo restores the most recently deleted item.
func (h *SessionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	item, restored, err := h.svc.Undo(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "undo", err)
		return
	}
	h.writeItem(w, http.StatusOK, id, itemOrNil(item, restored), restored)
}

// QuickAdd adds pasted item lines to a category.
func (h *SessionHandler) QuickAdd(w http.ResponseWriter, r *http.Request) {
	var req quickAddRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := sessionID(r)
	res, err := h.svc.QuickAdd(r.Context(), id, req.Category, req.Text)
	if err != nil {
		writeServiceError(w, h.log, "quick_add", err)
		return
	}
	snap, err := h.svc.Snapshot(id)
	if err != nil {
		writeServiceError(w, h.log, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, quickAddResponse{QuickAddResult: res, Session: snap})
}

// Submit persists the order list as a procurement request.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Submit(r.Context(), sessionID(r))
	if err != nil {
		writeServiceError(w, h.log, "submit", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) writeItem(w http.ResponseWriter, status int, id uuid.UUID, item *orderlist.LineItem, changed bool) {
	snap, err := h.svc.Snapshot(id)
	if err != nil {
		writeServiceError(w, h.log, "snapshot", err)
		return
	}
	writeJSON(w, status, itemResponse{Item: item, Changed: changed, Session: snap})
}

func itemOrNil(item orderlist.LineItem, ok bool) *orderlist.LineItem {
	if !ok {
		return nil
	}
	return &item
}
