package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"curio/internal/archive/metrics"
	"curio/internal/archive/models"
	"curio/internal/audit"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	"curio/pkg/requestcontext"
)

// Registry is the authorization-enforcing archive store the service
// orchestrates. Both the in-memory and postgres implementations satisfy it.
type Registry interface {
	Create(ctx context.Context, owner domain.Identity, draft models.ArchiveDraft) (domain.ArchiveID, error)
	Get(ctx context.Context, caller domain.Identity, id domain.ArchiveID) (*models.Archive, error)
	Update(ctx context.Context, caller domain.Identity, id domain.ArchiveID, patch models.ArchivePatch) (*models.Archive, error)
	Delete(ctx context.Context, caller domain.Identity, id domain.ArchiveID) error
	Grant(ctx context.Context, caller domain.Identity, id domain.ArchiveID, grantee domain.Identity, caps domain.CapabilitySet) error
	Revoke(ctx context.Context, caller domain.Identity, id domain.ArchiveID, grantee domain.Identity) error
	Grants(ctx context.Context, caller domain.Identity, id domain.ArchiveID) (map[domain.Identity]domain.CapabilitySet, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.ArchiveID, error)
	ListByCategory(ctx context.Context, category string) ([]domain.ArchiveID, error)
	Search(ctx context.Context, caller domain.Identity, query string, category *string) ([]*models.Archive, error)
	All(ctx context.Context) ([]*models.Archive, error)
	Total(ctx context.Context) (int, error)
}

// ContentStore resolves an archive's locator to its stored bytes.
type ContentStore interface {
	Fetch(ctx context.Context, locator domain.ContentLocator) ([]byte, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates registry operations: it resolves the caller from the
// request context, then layers auditing, metrics, and tracing around the
// registry, which remains the sole authority on authorization.
type Service struct {
	registry Registry
	content  ContentStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    AuditPublisher
	tracer   trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithContentStore enables the content read path. Without it, Content
// returns CodeUnavailable.
func WithContentStore(store ContentStore) Option {
	return func(s *Service) {
		s.content = store
	}
}

// WithTracer sets the tracer for span instrumentation. A nil tracer keeps
// the default noop tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a Service.
func New(registry Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new archive owned by the caller and returns it.
func (s *Service) Create(ctx context.Context, draft models.ArchiveDraft) (*models.Archive, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "archive.create", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	id, err := s.registry.Create(ctx, caller, draft)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveCreate(start)
		s.metrics.IncrementArchivesCreated()
	}
	span.SetAttributes(attribute.Int64("archive.id", int64(id)))

	s.logAudit(ctx, audit.Event{
		Actor:     caller,
		Action:    audit.ActionArchiveCreated,
		ArchiveID: id,
	}, "title", draft.Title)

	// The owner can always read back what they just created.
	return s.registry.Get(ctx, caller, id)
}

// Get returns one archive if the caller may view it.
func (s *Service) Get(ctx context.Context, id domain.ArchiveID) (*models.Archive, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "archive.get", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	a, err := s.registry.Get(ctx, caller, id)
	if err != nil {
		s.recordDenial(ctx, caller, id, "get", err)
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveGet(start)
	}
	return a, nil
}

// Update applies a partial update to an archive.
func (s *Service) Update(ctx context.Context, id domain.ArchiveID, patch models.ArchivePatch) (*models.Archive, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "archive.update", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	// The registry returns the updated archive from inside its critical
	// section; a visibility-checked re-read would wrongly report failure to
	// an Edit-only grantee whose write already landed.
	a, err := s.registry.Update(ctx, caller, id, patch)
	if err != nil {
		s.recordDenial(ctx, caller, id, "update", err)
		return nil, s.fail(span, err)
	}

	s.logAudit(ctx, audit.Event{
		Actor:     caller,
		Action:    audit.ActionArchiveUpdated,
		ArchiveID: id,
	})
	return a, nil
}

// Delete removes an archive and all grants attached to it.
func (s *Service) Delete(ctx context.Context, id domain.ArchiveID) error {
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "archive.delete", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if err := s.registry.Delete(ctx, caller, id); err != nil {
		s.recordDenial(ctx, caller, id, "delete", err)
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementArchivesDeleted()
	}

	s.logAudit(ctx, audit.Event{
		Actor:     caller,
		Action:    audit.ActionArchiveDeleted,
		ArchiveID: id,
	})
	return nil
}

// Grant sets the grantee's capability set on an archive, replacing any
// previous grant. An empty set removes the grant.
func (s *Service) Grant(ctx context.Context, id domain.ArchiveID, grantee domain.Identity, caps domain.CapabilitySet) error {
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "archive.grant", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if err := s.registry.Grant(ctx, caller, id, grantee, caps); err != nil {
		s.recordDenial(ctx, caller, id, "grant", err)
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementGrantsIssued()
	}

	s.logAudit(ctx, audit.Event{
		Actor:        caller,
		Action:       audit.ActionAccessGranted,
		ArchiveID:    id,
		Grantee:      grantee,
		Capabilities: caps,
	})
	return nil
}

// Revoke removes the grantee's grant. Revoking an absent grant is a no-op.
func (s *Service) Revoke(ctx context.Context, id domain.ArchiveID, grantee domain.Identity) error {
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "archive.revoke", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if err := s.registry.Revoke(ctx, caller, id, grantee); err != nil {
		s.recordDenial(ctx, caller, id, "revoke", err)
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementGrantsRevoked()
	}

	s.logAudit(ctx, audit.Event{
		Actor:     caller,
		Action:    audit.ActionAccessRevoked,
		ArchiveID: id,
		Grantee:   grantee,
	})
	return nil
}

// Grants returns the full grant table of an archive (owner-only).
func (s *Service) Grants(ctx context.Context, id domain.ArchiveID) (map[domain.Identity]domain.CapabilitySet, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.registry.Grants(ctx, caller, id)
	if err != nil {
		s.recordDenial(ctx, caller, id, "list grants", err)
		return nil, err
	}
	return grants, nil
}

// ListMine returns the ids of every archive the caller owns.
func (s *Service) ListMine(ctx context.Context) ([]domain.ArchiveID, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.ListByOwner(ctx, caller)
}

// ListByOwner returns the ids of every archive the given identity owns.
// Ownership is not secret; visibility is enforced when archives are read.
func (s *Service) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.ArchiveID, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	return s.registry.ListByOwner(ctx, owner)
}

// ListByCategory returns the ids of every archive in a category.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]domain.ArchiveID, error) {
	if category == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "category is required")
	}
	return s.registry.ListByCategory(ctx, category)
}

// Search returns the archives visible to the caller that match the query,
// newest first.
func (s *Service) Search(ctx context.Context, query string, category *string) ([]*models.Archive, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "archive.search", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	results, err := s.registry.Search(ctx, caller, query, category)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveSearch(start)
	}
	span.SetAttributes(attribute.Int("archive.results", len(results)))
	return results, nil
}

// Content fetches the bytes behind an archive's locator. The view check runs
// through the registry first; the locator never authorizes anything by
// itself.
func (s *Service) Content(ctx context.Context, id domain.ArchiveID) ([]byte, *models.Archive, error) {
	if s.content == nil {
		return nil, nil, dErrors.New(dErrors.CodeUnavailable, "content store not configured")
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.content.Fetch(ctx, a.Content)
	if err != nil {
		return nil, nil, err
	}
	return body, a, nil
}

// All returns every archive regardless of visibility. It backs the operator
// surface, which is gated by the admin token rather than a caller identity.
func (s *Service) All(ctx context.Context) ([]*models.Archive, error) {
	return s.registry.All(ctx)
}

// Total reports how many archives the registry holds.
func (s *Service) Total(ctx context.Context) (int, error) {
	return s.registry.Total(ctx)
}

func (s *Service) caller(ctx context.Context) (domain.Identity, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return caller, nil
}

// recordDenial emits an access.denied audit event when the registry refused
// the operation for lack of capability. Other failures are not denials.
func (s *Service) recordDenial(ctx context.Context, caller domain.Identity, id domain.ArchiveID, action string, err error) {
	if !dErrors.HasCode(err, dErrors.CodeForbidden) {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementAccessDenied()
	}
	s.logAudit(ctx, audit.Event{
		Actor:     caller,
		Action:    audit.ActionAccessDenied,
		ArchiveID: id,
		Reason:    action,
	})
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, dErrors.MessageOf(err))
	return err
}

func (s *Service) logAudit(ctx context.Context, event audit.Event, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes,
		"actor", event.Actor,
		"action", event.Action,
		"archive_id", event.ArchiveID,
		"log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event.Action), args...)
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}
