// Package handler exposes the archive registry over HTTP. Handlers translate
// between the wire shapes and the service; every authorization decision is
// made below them.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"curio/internal/archive/models"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	"curio/pkg/platform/httputil"
	"curio/pkg/requestcontext"
)

// Service defines the archive operations the handler exposes.
type Service interface {
	Create(ctx context.Context, draft models.ArchiveDraft) (*models.Archive, error)
	Get(ctx context.Context, id domain.ArchiveID) (*models.Archive, error)
	Update(ctx context.Context, id domain.ArchiveID, patch models.ArchivePatch) (*models.Archive, error)
	Delete(ctx context.Context, id domain.ArchiveID) error
	Grant(ctx context.Context, id domain.ArchiveID, grantee domain.Identity, caps domain.CapabilitySet) error
	Revoke(ctx context.Context, id domain.ArchiveID, grantee domain.Identity) error
	Grants(ctx context.Context, id domain.ArchiveID) (map[domain.Identity]domain.CapabilitySet, error)
	ListMine(ctx context.Context) ([]domain.ArchiveID, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.ArchiveID, error)
	ListByCategory(ctx context.Context, category string) ([]domain.ArchiveID, error)
	Search(ctx context.Context, query string, category *string) ([]*models.Archive, error)
	Content(ctx context.Context, id domain.ArchiveID) ([]byte, *models.Archive, error)
	All(ctx context.Context) ([]*models.Archive, error)
	Total(ctx context.Context) (int, error)
}

// Handler wires archive endpoints to the archive service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an archive handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the authenticated archive endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/archives", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{archiveID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Patch("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)
			r.Get("/content", h.HandleContent)
			r.Post("/grants", h.HandleGrant)
			r.Get("/grants", h.HandleGrants)
			r.Delete("/grants/{grantee}", h.HandleRevoke)
		})
	})
	r.Get("/me/archives", h.HandleMine)
	r.Get("/stats", h.HandleStats)
}

// RegisterAdmin mounts the operator endpoints. The caller is expected to
// guard the router with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/archives", h.HandleAdminList)
}

// HandleCreate handles POST /archives.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateArchiveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := h.service.Create(ctx, req.ParsedDraft())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "archive created",
		"request_id", requestID,
		"archive_id", a.ID,
		"owner", a.Owner,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromArchive(a))
}

// HandleGet handles GET /archives/{archiveID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromArchive(a))
}

// HandleUpdate handles PATCH /archives/{archiveID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateArchiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	a, err := h.service.Update(ctx, id, req.ParsedPatch())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromArchive(a))
}

// HandleDelete handles DELETE /archives/{archiveID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGrant handles POST /archives/{archiveID}/grants.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[GrantRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Grant(ctx, id, req.ParsedGrantee(), req.ParsedCapabilities()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevoke handles DELETE /archives/{archiveID}/grants/{grantee}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	grantee, err := domain.ParseIdentity(chi.URLParam(r, "grantee"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Revoke(r.Context(), id, grantee); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGrants handles GET /archives/{archiveID}/grants.
func (h *Handler) HandleGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	grants, err := h.service.Grants(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromGrants(grants))
}

// HandleContent handles GET /archives/{archiveID}/content. The view check
// runs first; only then are bytes fetched from the content store.
func (h *Handler) HandleContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.archiveID(w, r)
	if !ok {
		return
	}

	body, a, err := h.service.Content(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Content-Locator", a.Content.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleList handles GET /archives. Dispatch: ?owner= lists an owner's ids,
// ?category= without ?q= lists a category's ids, anything else is a search
// over the archives visible to the caller.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if ownerParam := query.Get("owner"); ownerParam != "" {
		owner, err := domain.ParseIdentity(ownerParam)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ids, err := h.service.ListByOwner(ctx, owner)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, FromIDs(ids))
		return
	}

	q := query.Get("q")
	category := query.Get("category")

	if category != "" && q == "" {
		ids, err := h.service.ListByCategory(ctx, category)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, FromIDs(ids))
		return
	}

	var categoryFilter *string
	if category != "" {
		categoryFilter = &category
	}
	results, err := h.service.Search(ctx, q, categoryFilter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromArchives(results))
}

// HandleMine handles GET /me/archives.
func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.ListMine(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIDs(ids))
}

// HandleStats handles GET /stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.Total(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatsResponse{TotalArchives: total})
}

// HandleAdminList handles GET /admin/archives. Visibility does not apply on
// the operator surface.
func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	archives, err := h.service.All(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromArchives(archives))
}

func (h *Handler) archiveID(w http.ResponseWriter, r *http.Request) (domain.ArchiveID, bool) {
	id, err := domain.ParseArchiveID(chi.URLParam(r, "archiveID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "archive id must be a positive integer"))
		return 0, false
	}
	return id, true
}
