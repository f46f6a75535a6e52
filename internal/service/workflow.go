package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/internal/models"
	"github.com/noah-isme/alumni-network-api/internal/repository"
	"github.com/noah-isme/alumni-network-api/pkg/database"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
)

// transitionTable lists, per target status, the source statuses it may be reached from and the
// relations allowed to request it.
type transitionTable[S ~string] struct {
	name     string
	edges    map[S]map[S]Capability
	terminal map[S]bool
	// idempotent targets are returned unchanged when the instance already holds them.
	idempotent map[S]bool
}

type edge[S ~string] struct {
	from  []S
	to    S
	roles Capability
}

func newTransitionTable[S ~string](name string, terminal, idempotent []S, edges ...edge[S]) transitionTable[S] {
	t := transitionTable[S]{
		name:       name,
		edges:      make(map[S]map[S]Capability),
		terminal:   make(map[S]bool, len(terminal)),
		idempotent: make(map[S]bool, len(idempotent)),
	}
	for _, s := range terminal {
		t.terminal[s] = true
	}
	for _, s := range idempotent {
		t.idempotent[s] = true
	}
	for _, e := range edges {
		if t.edges[e.to] == nil {
			t.edges[e.to] = make(map[S]Capability)
		}
		for _, from := range e.from {
			t.edges[e.to][from] |= e.roles
		}
	}
	return t
}

// rolesFor returns every relation that may reach target from some status.
func (t transitionTable[S]) rolesFor(target S) Capability {
	var roles Capability
	for _, r := range t.edges[target] {
		roles |= r
	}
	return roles
}

// IsTerminal reports whether no transition leaves status.
func (t transitionTable[S]) IsTerminal(status S) bool {
	return t.terminal[status]
}

// check validates a transition request. It returns noop=true when the request repeats an
// idempotent target the instance already holds.
func (t transitionTable[S]) check(current, target S, caps Capability) (noop bool, err error) {
	roles := t.rolesFor(target)
	if roles == 0 {
		return false, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("%s cannot be moved to %s", t.name, target))
	}
	if !caps.Has(roles) {
		return false, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("actor may not set %s to %s", t.name, target))
	}
	if current == target && t.idempotent[target] {
		return true, nil
	}
	rowRoles, ok := t.edges[target][current]
	if !ok || t.terminal[current] {
		return false, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("%s cannot move from %s to %s", t.name, current, target))
	}
	if !caps.Has(rowRoles) {
		return false, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("actor may not move %s from %s to %s", t.name, current, target))
	}
	return false, nil
}

var connectionTransitions = newTransitionTable("connection",
	[]models.ConnectionStatus{models.ConnectionDeclined, models.ConnectionBlocked},
	[]models.ConnectionStatus{models.ConnectionBlocked},
	edge[models.ConnectionStatus]{from: []models.ConnectionStatus{models.ConnectionPending}, to: models.ConnectionAccepted, roles: CapReceiver},
	edge[models.ConnectionStatus]{from: []models.ConnectionStatus{models.ConnectionPending}, to: models.ConnectionDeclined, roles: CapReceiver},
	edge[models.ConnectionStatus]{
		from:  []models.ConnectionStatus{models.ConnectionPending, models.ConnectionAccepted},
		to:    models.ConnectionBlocked,
		roles: CapRequester | CapReceiver,
	},
)

var registrationTransitions = newTransitionTable("registration",
	[]models.RegistrationStatus{models.RegistrationCancelled, models.RegistrationAttended},
	[]models.RegistrationStatus{models.RegistrationCancelled},
	edge[models.RegistrationStatus]{
		from:  []models.RegistrationStatus{models.RegistrationRegistered, models.RegistrationWaitlist},
		to:    models.RegistrationCancelled,
		roles: CapRegistrant | CapOrganizer,
	},
	edge[models.RegistrationStatus]{
		from:  []models.RegistrationStatus{models.RegistrationRegistered, models.RegistrationWaitlist},
		to:    models.RegistrationAttended,
		roles: CapOrganizer,
	},
)

var applicationTransitions = newTransitionTable("application",
	[]models.ApplicationStatus{models.ApplicationHired, models.ApplicationRejected, models.ApplicationWithdrawn},
	[]models.ApplicationStatus{models.ApplicationWithdrawn},
	edge[models.ApplicationStatus]{from: []models.ApplicationStatus{models.ApplicationSubmitted}, to: models.ApplicationUnderReview, roles: CapPoster},
	edge[models.ApplicationStatus]{from: []models.ApplicationStatus{models.ApplicationUnderReview}, to: models.ApplicationShortlisted, roles: CapPoster},
	edge[models.ApplicationStatus]{from: []models.ApplicationStatus{models.ApplicationShortlisted}, to: models.ApplicationInterview, roles: CapPoster},
	edge[models.ApplicationStatus]{from: []models.ApplicationStatus{models.ApplicationInterview}, to: models.ApplicationOffered, roles: CapPoster},
	edge[models.ApplicationStatus]{from: []models.ApplicationStatus{models.ApplicationOffered}, to: models.ApplicationHired, roles: CapPoster},
	edge[models.ApplicationStatus]{
		from: []models.ApplicationStatus{
			models.ApplicationSubmitted, models.ApplicationUnderReview, models.ApplicationShortlisted,
			models.ApplicationInterview, models.ApplicationOffered,
		},
		to:    models.ApplicationRejected,
		roles: CapPoster,
	},
	edge[models.ApplicationStatus]{
		from: []models.ApplicationStatus{
			models.ApplicationSubmitted, models.ApplicationUnderReview, models.ApplicationShortlisted,
			models.ApplicationInterview, models.ApplicationOffered,
		},
		to:    models.ApplicationWithdrawn,
		roles: CapApplicant,
	},
)

// WorkflowConfig bounds store access for all workflow services.
type WorkflowConfig struct {
	StoreTimeout  time.Duration
	RetryAttempts int
	RetryInterval time.Duration
}

func (c WorkflowConfig) withDefaults() WorkflowConfig {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	return c
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type notificationPublisher interface {
	Publish(n Notification)
}

// workflowRuntime carries the collaborators every workflow service shares.
type workflowRuntime struct {
	cfg      WorkflowConfig
	audit    auditLogger
	notifier notificationPublisher
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// WorkflowOption configures the workflow services.
type WorkflowOption func(*workflowRuntime)

// WithAudit records successful creates and transitions.
func WithAudit(audit auditLogger) WorkflowOption {
	return func(r *workflowRuntime) { r.audit = audit }
}

// WithNotifications publishes workflow notifications.
func WithNotifications(n notificationPublisher) WorkflowOption {
	return func(r *workflowRuntime) { r.notifier = n }
}

// WithMetrics records workflow metrics.
func WithMetrics(m *MetricsService) WorkflowOption {
	return func(r *workflowRuntime) { r.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) WorkflowOption {
	return func(r *workflowRuntime) {
		if now != nil {
			r.now = now
		}
	}
}

func newWorkflowRuntime(cfg WorkflowConfig, logger *zap.Logger, opts []WorkflowOption) workflowRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := workflowRuntime{
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&rt)
	}
	return rt
}

// storeContext bounds a store call.
func (r *workflowRuntime) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.StoreTimeout)
}

// retry runs op until it succeeds, fails permanently, or exhausts the attempts. Stale CAS writes
// and lock contention are retried with exponential backoff and end as Busy.
func (r *workflowRuntime) retry(ctx context.Context, workflow string, op func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.RetryInterval
	policy.MaxInterval = r.cfg.RetryInterval * 8
	policy.MaxElapsedTime = 0

	attempts := uint64(r.cfg.RetryAttempts - 1)
	b := backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx)

	err := backoff.RetryNotify(func() error {
		storeCtx, cancel := r.storeContext(ctx)
		defer cancel()
		start := time.Now()
		err := op(storeCtx)
		r.metrics.ObserveStore(workflow, time.Since(start))
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrStaleStatus) || database.IsBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		r.metrics.RecordConflict(workflow)
		r.logger.Debug("workflow write contended, retrying",
			zap.String("workflow", workflow),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStaleStatus) || database.IsBusy(err) || errors.Is(err, context.Canceled) {
		r.metrics.RecordBusy(workflow)
		return appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, fmt.Sprintf("%s is busy, retry later", workflow))
	}
	return err
}

// storeError translates repository failures into typed errors.
func storeError(err error, notFound *appErrors.Error, action string) error {
	var appErr *appErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case database.IsForeignKeyViolation(err):
		return unknownActor(err)
	case isNoRows(err):
		return notFound
	case database.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrDuplicateRequest.Code, appErrors.ErrDuplicateRequest.Status, appErrors.ErrDuplicateRequest.Message)
	case errors.Is(err, repository.ErrStaleStatus), database.IsBusy(err):
		return err
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, action)
	}
}

func (r *workflowRuntime) emitAudit(ctx context.Context, actorID string, log *models.AuditLog) {
	if r.audit == nil || log == nil {
		return
	}
	log.UserID = &actorID
	meta := requestMetaFrom(ctx)
	log.IPAddress = meta.IPAddress
	log.UserAgent = meta.UserAgent
	// Audit rows are written after the workflow commit and must not inherit a cancelled request.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
	defer cancel()
	if err := r.audit.CreateAuditLog(auditCtx, log); err != nil {
		r.logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func (r *workflowRuntime) notify(n Notification) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(n)
}

func (r *workflowRuntime) transitioned(workflow, from, to string) {
	r.metrics.RecordTransition(workflow, from, to)
}

// RequestMeta describes the client that triggered a workflow call.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client metadata recorded in audit rows.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the client metadata attached to ctx, if any.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	if meta, ok := RequestMetaFrom(ctx); ok {
		return meta
	}
	return RequestMeta{IPAddress: "system", UserAgent: "workflow-service"}
}

// isNoRows reports a lookup that matched nothing. A malformed identifier cannot name a row.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || database.IsInvalidInput(err)
}

// unknownActor reports an authenticated actor without a member profile: writes referencing the
// actor violate the users foreign key, and a non-uuid subject fails to parse.
func unknownActor(err error) error {
	return appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "actor has no member profile")
}

// busyOrInternal classifies an unexpected store failure. Identifier lookups are resolved by the
// caller first, so a remaining parse or reference failure comes from the actor id.
func (r *workflowRuntime) busyOrInternal(err error, action string) error {
	switch {
	case database.IsBusy(err):
		return appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, appErrors.ErrBusy.Message)
	case database.IsForeignKeyViolation(err), database.IsInvalidInput(err):
		return unknownActor(err)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, action)
	}
}

func statusJSON[S ~string](status S) []byte {
	payload, _ := json.Marshal(map[string]string{"status": string(status)})
	return payload
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
