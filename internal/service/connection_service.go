package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/models"
	"github.com/noah-isme/alumni-network-api/internal/repository"
	"github.com/noah-isme/alumni-network-api/pkg/database"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
)

type connectionStore interface {
	Create(ctx context.Context, conn *models.Connection) error
	FindByID(ctx context.Context, id string) (*models.Connection, error)
	FindActive(ctx context.Context, requesterID, receiverID string) (*models.Connection, error)
	UpdateStatus(ctx context.Context, id string, expected, next models.ConnectionStatus) (*models.Connection, error)
	DeletePending(ctx context.Context, id, requesterID string) error
	List(ctx context.Context, filter models.ConnectionFilter) ([]models.Connection, int, error)
}

type userDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

var errConnectionNotFound = appErrors.Clone(appErrors.ErrNotFound, "connection not found")

// ConnectionService runs the connection request workflow.
type ConnectionService struct {
	workflowRuntime
	repo      connectionStore
	users     userDirectory
	validator *validator.Validate
}

// NewConnectionService constructs the service.
func NewConnectionService(repo connectionStore, users userDirectory, validate *validator.Validate, cfg WorkflowConfig, logger *zap.Logger, opts ...WorkflowOption) *ConnectionService {
	if validate == nil {
		validate = validator.New()
	}
	return &ConnectionService{
		workflowRuntime: newWorkflowRuntime(cfg, logger, opts),
		repo:            repo,
		users:           users,
		validator:       validate,
	}
}

// Request sends a connection request from the actor to the receiver.
func (s *ConnectionService) Request(ctx context.Context, actorID string, req dto.CreateConnectionRequest) (*models.Connection, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid connection payload")
	}
	if req.ReceiverID == actorID {
		return nil, appErrors.Clone(appErrors.ErrInvalidTarget, "cannot connect with yourself")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	exists, err := s.users.Exists(ctx, req.ReceiverID)
	if err != nil {
		return nil, storeError(err, appErrors.ErrInvalidTarget, "failed to look up receiver")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrInvalidTarget, "receiver not found")
	}

	reverse, err := s.repo.FindActive(ctx, req.ReceiverID, actorID)
	if err != nil {
		return nil, s.busyOrInternal(err, "failed to check existing connections")
	}
	if reverse != nil && reverse.Status == models.ConnectionBlocked {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "receiver is not accepting requests")
	}
	existing, err := s.repo.FindActive(ctx, actorID, req.ReceiverID)
	if err != nil {
		return nil, s.busyOrInternal(err, "failed to check existing connections")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "connection request already exists")
	}

	conn := &models.Connection{
		RequesterID: actorID,
		ReceiverID:  req.ReceiverID,
		Status:      models.ConnectionPending,
		Message:     optionalString(req.Message),
	}
	if err := s.repo.Create(ctx, conn); err != nil {
		if database.IsCheckViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidTarget.Code, appErrors.ErrInvalidTarget.Status, "cannot connect with yourself")
		}
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrDuplicateRequest.Code, appErrors.ErrDuplicateRequest.Status, "connection request already exists")
		}
		return nil, s.busyOrInternal(err, "failed to create connection request")
	}

	s.transitioned("connection", "", string(conn.Status))
	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionConnectionRequest,
		Resource:   models.AuditResourceConnection,
		ResourceID: &conn.ID,
		NewValues:  statusJSON(conn.Status),
	})
	s.notify(Notification{
		Type:        NotifyConnectionRequested,
		RecipientID: conn.ReceiverID,
		ActorID:     actorID,
		Resource:    models.AuditResourceConnection,
		ResourceID:  conn.ID,
		Status:      string(conn.Status),
	})
	return conn, nil
}

// Transition moves a connection request to the requested status.
func (s *ConnectionService) Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.Connection, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	target := models.ConnectionStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown connection status")
	}

	var (
		current *models.Connection
		result  *models.Connection
		from    models.ConnectionStatus
		noop    bool
	)
	err := s.retry(ctx, "connection", func(ctx context.Context) error {
		if current == nil {
			loaded, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return storeError(err, errConnectionNotFound, "failed to load connection")
			}
			current = loaded
		}
		skip, err := connectionTransitions.check(current.Status, target, ConnectionCapabilities(actorID, current))
		if err != nil {
			return err
		}
		if skip {
			result, noop = current, true
			return nil
		}
		updated, err := s.repo.UpdateStatus(ctx, id, current.Status, target)
		if err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				current = nil
			}
			return storeError(err, errConnectionNotFound, "failed to update connection")
		}
		from, result = current.Status, updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return result, nil
	}

	s.transitioned("connection", string(from), string(target))
	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionConnectionTransition,
		Resource:   models.AuditResourceConnection,
		ResourceID: &result.ID,
		OldValues:  statusJSON(from),
		NewValues:  statusJSON(target),
	})
	s.notify(Notification{
		Type:        NotifyConnectionChanged,
		RecipientID: counterparty(result, actorID),
		ActorID:     actorID,
		Resource:    models.AuditResourceConnection,
		ResourceID:  result.ID,
		Status:      string(target),
	})
	return result, nil
}

// Cancel deletes the actor's own pending request.
func (s *ConnectionService) Cancel(ctx context.Context, actorID, id string) error {
	if actorID == "" {
		return appErrors.ErrUnauthorized
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	conn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return storeError(err, errConnectionNotFound, "failed to load connection")
	}
	caps := ConnectionCapabilities(actorID, conn)
	if !caps.CanRead() {
		return errConnectionNotFound
	}
	if !caps.Has(CapRequester) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the requester may cancel a request")
	}
	if conn.Status != models.ConnectionPending {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be cancelled")
	}

	if err := s.repo.DeletePending(ctx, id, actorID); err != nil {
		if !errors.Is(err, repository.ErrStaleStatus) {
			return s.busyOrInternal(err, "failed to cancel connection request")
		}
		if _, reloadErr := s.repo.FindByID(ctx, id); reloadErr != nil {
			return storeError(reloadErr, errConnectionNotFound, "failed to load connection")
		}
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be cancelled")
	}

	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionConnectionCancel,
		Resource:   models.AuditResourceConnection,
		ResourceID: &conn.ID,
		OldValues:  statusJSON(conn.Status),
	})
	return nil
}

// Get returns a connection visible to the actor.
func (s *ConnectionService) Get(ctx context.Context, actorID, id string) (*models.Connection, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	conn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, errConnectionNotFound, "failed to load connection")
	}
	if !ConnectionCapabilities(actorID, conn).CanRead() {
		return nil, errConnectionNotFound
	}
	return conn, nil
}

// ListForActor returns connections the actor sent or received.
func (s *ConnectionService) ListForActor(ctx context.Context, actorID string, query dto.ListQuery) ([]models.Connection, *models.Pagination, error) {
	if actorID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list query")
	}
	status := models.ConnectionStatus(query.Status)
	if status != "" && !status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown connection status")
	}
	filter := models.ConnectionFilter{
		ActorID:     actorID,
		Direction:   models.ConnectionDirection(query.Direction),
		Status:      status,
		PageRequest: models.PageRequest{Page: query.Page, PageSize: query.PageSize}.Normalize(),
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, s.busyOrInternal(err, "failed to list connections")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func counterparty(conn *models.Connection, actorID string) string {
	if conn.RequesterID == actorID {
		return conn.ReceiverID
	}
	return conn.RequesterID
}
