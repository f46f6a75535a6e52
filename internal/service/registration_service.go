package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/models"
	"github.com/noah-isme/alumni-network-api/internal/repository"
	"github.com/noah-isme/alumni-network-api/pkg/database"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
	"github.com/noah-isme/alumni-network-api/pkg/export"
)

type eventStore interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	CountByStatus(ctx context.Context, eventID string) (map[models.RegistrationStatus]int, error)
	WithEventLock(ctx context.Context, eventID string, fn func(repository.EventScope) error) error
}

type registrationReader interface {
	FindByID(ctx context.Context, id string) (*models.EventRegistration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.EventRegistration, int, error)
}

var (
	errRegistrationNotFound = appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	errEventNotFound        = appErrors.Clone(appErrors.ErrNotFound, "event not found")
	errEventNotEligible     = appErrors.Clone(appErrors.ErrNotEligible, "event not found")
)

// RegistrationService runs the event registration workflow, including admission and waitlist
// promotion.
type RegistrationService struct {
	workflowRuntime
	events    eventStore
	regs      registrationReader
	admission *AdmissionController
	grants    ApprovalGrants
	cache     *CacheService
	validator *validator.Validate
}

// RegistrationOption configures the registration service.
type RegistrationOption func(*RegistrationService)

// WithApprovalGrants sets the approval collaborator for approval-gated events.
func WithApprovalGrants(grants ApprovalGrants) RegistrationOption {
	return func(s *RegistrationService) {
		if grants != nil {
			s.grants = grants
		}
	}
}

// WithCapacityCache caches capacity summaries.
func WithCapacityCache(cache *CacheService) RegistrationOption {
	return func(s *RegistrationService) { s.cache = cache }
}

// NewRegistrationService constructs the service.
func NewRegistrationService(events eventStore, regs registrationReader, admission *AdmissionController, validate *validator.Validate, cfg WorkflowConfig, logger *zap.Logger, opts []WorkflowOption, regOpts ...RegistrationOption) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if admission == nil {
		admission = NewAdmissionController()
	}
	svc := &RegistrationService{
		workflowRuntime: newWorkflowRuntime(cfg, logger, opts),
		events:          events,
		regs:            regs,
		admission:       admission,
		grants:          NoApprovalGrants,
		validator:       validate,
	}
	for _, opt := range regOpts {
		opt(svc)
	}
	return svc
}

// Register admits the actor to the event as registered or waitlisted.
func (s *RegistrationService) Register(ctx context.Context, actorID, eventID string, req dto.RegisterEventRequest) (*models.EventRegistration, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	event, err := s.loadEvent(ctx, eventID, errEventNotEligible)
	if err != nil {
		return nil, err
	}
	if err := s.admission.CheckOpen(event, s.now()); err != nil {
		s.metrics.RecordAdmission("closed")
		return nil, err
	}
	approved := true
	if event.RequiresApproval {
		approved, err = s.grants.IsApproved(ctx, eventID, actorID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check approval")
		}
		if !approved {
			s.metrics.RecordAdmission("approval_required")
			return nil, appErrors.ErrApprovalRequired
		}
	}

	var reg *models.EventRegistration
	err = s.retry(ctx, "registration", func(ctx context.Context) error {
		reg = nil
		err := s.events.WithEventLock(ctx, eventID, func(scope repository.EventScope) error {
			existing, err := scope.FindActiveRegistration(ctx, actorID)
			if err != nil {
				return err
			}
			if existing != nil {
				return appErrors.Clone(appErrors.ErrDuplicateRequest, "already registered for this event")
			}
			registered, err := scope.CountByStatus(ctx, models.RegistrationRegistered)
			if err != nil {
				return err
			}
			status, err := s.admission.Decide(scope.Event(), registered, approved, s.now())
			if err != nil {
				return err
			}
			candidate := &models.EventRegistration{
				UserID:              actorID,
				Status:              status,
				SpecialRequirements: optionalString(req.SpecialRequirements),
			}
			if err := scope.InsertRegistration(ctx, candidate); err != nil {
				return err
			}
			reg = candidate
			return nil
		})
		if database.IsInvalidInput(err) {
			// The event id already resolved above, so the actor id is what failed to parse.
			return unknownActor(err)
		}
		return storeError(err, errEventNotEligible, "failed to register for event")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAdmission(string(reg.Status))
	s.transitioned("registration", "", string(reg.Status))
	s.cache.Invalidate(ctx, CapacityCacheKey(eventID))
	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionRegistrationCreate,
		Resource:   models.AuditResourceRegistration,
		ResourceID: &reg.ID,
		NewValues:  statusJSON(reg.Status),
	})
	s.notify(Notification{
		Type:        NotifyRegistrationCreated,
		RecipientID: event.OrganizerID,
		ActorID:     actorID,
		Resource:    models.AuditResourceRegistration,
		ResourceID:  reg.ID,
		Status:      string(reg.Status),
	})
	return reg, nil
}

// Transition cancels a registration or records attendance. Cancelling a registered seat promotes
// the oldest waitlisted registration within the same event lock.
func (s *RegistrationService) Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.EventRegistration, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	target := models.RegistrationStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown registration status")
	}

	reg, event, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	noop, err := registrationTransitions.check(reg.Status, target, RegistrationCapabilities(actorID, reg, event))
	if err != nil {
		return nil, err
	}
	if noop {
		return reg, nil
	}

	var (
		result   *models.EventRegistration
		promoted *models.EventRegistration
		from     models.RegistrationStatus
	)
	err = s.retry(ctx, "registration", func(ctx context.Context) error {
		result, promoted, noop = nil, nil, false
		err := s.events.WithEventLock(ctx, reg.EventID, func(scope repository.EventScope) error {
			current, err := scope.LockRegistration(ctx, id)
			if err != nil {
				return err
			}
			locked := scope.Event()
			skip, err := registrationTransitions.check(current.Status, target, RegistrationCapabilities(actorID, current, locked))
			if err != nil {
				return err
			}
			if skip {
				result, noop = current, true
				return nil
			}
			if target == models.RegistrationAttended && !locked.HasEnded(s.now()) {
				return appErrors.Clone(appErrors.ErrNotEligible, "attendance can only be recorded after the event")
			}

			updated, err := scope.UpdateRegistrationStatus(ctx, id, current.Status, target)
			if err != nil {
				return err
			}
			from, result = current.Status, updated

			if target != models.RegistrationCancelled || current.Status != models.RegistrationRegistered {
				return nil
			}
			registered, err := scope.CountByStatus(ctx, models.RegistrationRegistered)
			if err != nil {
				return err
			}
			oldest, err := scope.OldestWaitlisted(ctx)
			if err != nil {
				return err
			}
			if next := s.admission.Promote(locked, registered, oldest); next != nil {
				promoted, err = scope.UpdateRegistrationStatus(ctx, next.ID, models.RegistrationWaitlist, models.RegistrationRegistered)
				if err != nil {
					return err
				}
			}
			return nil
		})
		return storeError(err, errRegistrationNotFound, "failed to update registration")
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return result, nil
	}

	s.transitioned("registration", string(from), string(target))
	s.cache.Invalidate(ctx, CapacityCacheKey(result.EventID))
	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionRegistrationChange,
		Resource:   models.AuditResourceRegistration,
		ResourceID: &result.ID,
		OldValues:  statusJSON(from),
		NewValues:  statusJSON(target),
	})
	recipient := result.UserID
	if actorID == result.UserID {
		recipient = event.OrganizerID
	}
	s.notify(Notification{
		Type:        NotifyRegistrationChanged,
		RecipientID: recipient,
		ActorID:     actorID,
		Resource:    models.AuditResourceRegistration,
		ResourceID:  result.ID,
		Status:      string(target),
	})

	if promoted != nil {
		s.metrics.RecordPromotion()
		s.transitioned("registration", string(models.RegistrationWaitlist), string(models.RegistrationRegistered))
		s.emitAudit(ctx, actorID, &models.AuditLog{
			Action:     models.AuditActionRegistrationPromote,
			Resource:   models.AuditResourceRegistration,
			ResourceID: &promoted.ID,
			OldValues:  statusJSON(models.RegistrationWaitlist),
			NewValues:  statusJSON(models.RegistrationRegistered),
		})
		s.notify(Notification{
			Type:        NotifyRegistrationPromote,
			RecipientID: promoted.UserID,
			ActorID:     actorID,
			Resource:    models.AuditResourceRegistration,
			ResourceID:  promoted.ID,
			Status:      string(promoted.Status),
		})
	}
	return result, nil
}

// Get returns a registration visible to its user or the event organizer.
func (s *RegistrationService) Get(ctx context.Context, actorID, id string) (*models.EventRegistration, error) {
	reg, event, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if !RegistrationCapabilities(actorID, reg, event).CanRead() {
		return nil, errRegistrationNotFound
	}
	return reg, nil
}

// ListForEvent returns the event's registrations to its organizer.
func (s *RegistrationService) ListForEvent(ctx context.Context, actorID, eventID string, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error) {
	if actorID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	event, err := s.loadEvent(ctx, eventID, errEventNotFound)
	if err != nil {
		return nil, nil, err
	}
	if !RegistrationCapabilities(actorID, nil, event).Has(CapOrganizer) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the organizer may list registrations")
	}
	return s.list(ctx, models.RegistrationFilter{EventID: eventID}, query)
}

// ExportRoster returns every registration of the event, oldest first, as a table for the
// organizer. An optional status narrows the roster.
func (s *RegistrationService) ExportRoster(ctx context.Context, actorID, eventID, status string) (*export.Table, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	event, err := s.loadEvent(ctx, eventID, errEventNotFound)
	if err != nil {
		return nil, err
	}
	if !RegistrationCapabilities(actorID, nil, event).Has(CapOrganizer) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the organizer may export registrations")
	}

	table := &export.Table{Headers: []string{"registration_id", "user_id", "status", "registration_date", "special_requirements"}}
	query := dto.ListQuery{Status: status, Page: 1, PageSize: 100}
	for {
		items, page, err := s.list(ctx, models.RegistrationFilter{EventID: eventID}, query)
		if err != nil {
			return nil, err
		}
		for _, reg := range items {
			notes := ""
			if reg.SpecialRequirements != nil {
				notes = *reg.SpecialRequirements
			}
			table.AddRow(reg.ID, reg.UserID, string(reg.Status), reg.RegistrationDate.UTC().Format(time.RFC3339), notes)
		}
		if len(items) == 0 || query.Page*query.PageSize >= page.TotalCount {
			return table, nil
		}
		query.Page++
	}
}

// ListMine returns the actor's registrations.
func (s *RegistrationService) ListMine(ctx context.Context, actorID string, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error) {
	if actorID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	return s.list(ctx, models.RegistrationFilter{UserID: actorID}, query)
}

// Capacity returns the seat usage summary of an event, served from cache when enabled.
func (s *RegistrationService) Capacity(ctx context.Context, actorID, eventID string) (*models.EventCapacity, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	key := CapacityCacheKey(eventID)
	var summary models.EventCapacity
	if !s.cache.Get(ctx, key, &summary) {
		event, err := s.loadEvent(ctx, eventID, errEventNotFound)
		if err != nil {
			return nil, err
		}
		storeCtx, cancel := s.storeContext(ctx)
		counts, err := s.events.CountByStatus(storeCtx, eventID)
		cancel()
		if err != nil {
			return nil, s.busyOrInternal(err, "failed to count registrations")
		}
		summary = s.admission.Capacity(event, counts)
		s.cache.Set(ctx, key, summary, 0)
	}
	if !summary.IsPublic && summary.OrganizerID != actorID {
		return nil, errEventNotFound
	}
	return &summary, nil
}

func (s *RegistrationService) list(ctx context.Context, filter models.RegistrationFilter, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list query")
	}
	filter.Status = models.RegistrationStatus(query.Status)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown registration status")
	}
	filter.PageRequest = models.PageRequest{Page: query.Page, PageSize: query.PageSize}.Normalize()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	items, total, err := s.regs.List(ctx, filter)
	if err != nil {
		return nil, nil, s.busyOrInternal(err, "failed to list registrations")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *RegistrationService) loadEvent(ctx context.Context, eventID string, notFound *appErrors.Error) (*models.Event, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound
		}
		return nil, s.busyOrInternal(err, "failed to load event")
	}
	return event, nil
}

func (s *RegistrationService) loadRegistration(ctx context.Context, id string) (*models.EventRegistration, *models.Event, error) {
	storeCtx, cancel := s.storeContext(ctx)
	reg, err := s.regs.FindByID(storeCtx, id)
	cancel()
	if err != nil {
		if isNoRows(err) {
			return nil, nil, errRegistrationNotFound
		}
		return nil, nil, s.busyOrInternal(err, "failed to load registration")
	}
	event, err := s.loadEvent(ctx, reg.EventID, errRegistrationNotFound)
	if err != nil {
		return nil, nil, err
	}
	return reg, event, nil
}
