package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/alumni-network-api/internal/models"
	"github.com/noah-isme/alumni-network-api/internal/repository"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

var fastWorkflow = WorkflowConfig{StoreTimeout: time.Second, RetryAttempts: 3, RetryInterval: time.Millisecond}

type auditStub struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (s *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

func (s *auditStub) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

type publisherStub struct {
	mu    sync.Mutex
	notes []Notification
}

func (s *publisherStub) Publish(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *publisherStub) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, n.Type)
	}
	return out
}

type userDirectoryStub map[string]bool

func (s userDirectoryStub) Exists(_ context.Context, id string) (bool, error) {
	return s[id], nil
}

// connectionStoreStub mimics the partial unique index and CAS semantics of the connections table.
type connectionStoreStub struct {
	mu        sync.Mutex
	rows      map[string]*models.Connection
	seq       int
	createErr error
	// staleOnce makes the next UpdateStatus miss its CAS after applying this status.
	staleOnce models.ConnectionStatus
}

func newConnectionStoreStub() *connectionStoreStub {
	return &connectionStoreStub{rows: make(map[string]*models.Connection)}
}

func (s *connectionStoreStub) Create(_ context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, row := range s.rows {
		if row.RequesterID == conn.RequesterID && row.ReceiverID == conn.ReceiverID && row.Status.Active() {
			return fmt.Errorf("create connection: %w", &pq.Error{Code: "23505", Constraint: "connections_active_pair_uidx"})
		}
	}
	s.seq++
	conn.ID = fmt.Sprintf("conn-%d", s.seq)
	conn.CreatedAt = testNow
	conn.UpdatedAt = testNow
	stored := *conn
	s.rows[conn.ID] = &stored
	return nil
}

func (s *connectionStoreStub) FindByID(_ context.Context, id string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("find connection: %w", sql.ErrNoRows)
	}
	copied := *row
	return &copied, nil
}

func (s *connectionStoreStub) FindActive(_ context.Context, requesterID, receiverID string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.RequesterID == requesterID && row.ReceiverID == receiverID && row.Status.Active() {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *connectionStoreStub) UpdateStatus(_ context.Context, id string, expected, next models.ConnectionStatus) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrStaleStatus
	}
	if s.staleOnce != "" {
		row.Status = s.staleOnce
		s.staleOnce = ""
		return nil, repository.ErrStaleStatus
	}
	if row.Status != expected {
		return nil, repository.ErrStaleStatus
	}
	row.Status = next
	copied := *row
	return &copied, nil
}

func (s *connectionStoreStub) DeletePending(_ context.Context, id, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.RequesterID != requesterID || row.Status != models.ConnectionPending {
		return repository.ErrStaleStatus
	}
	delete(s.rows, id)
	return nil
}

func (s *connectionStoreStub) List(_ context.Context, filter models.ConnectionFilter) ([]models.Connection, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Connection
	for _, row := range s.rows {
		switch filter.Direction {
		case models.ConnectionDirectionSent:
			if row.RequesterID != filter.ActorID {
				continue
			}
		case models.ConnectionDirectionReceived:
			if row.ReceiverID != filter.ActorID {
				continue
			}
		default:
			if row.RequesterID != filter.ActorID && row.ReceiverID != filter.ActorID {
				continue
			}
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		out = append(out, *row)
	}
	return out, len(out), nil
}

// eventStoreStub serializes event scopes with a per-event mutex and applies scope writes only
// when the callback succeeds, like the row-locked transaction in EventRepository.
type eventStoreStub struct {
	mu     sync.Mutex
	events map[string]*models.Event
	regs   map[string]*models.EventRegistration
	locks  map[string]*sync.Mutex
	seq    int
	// lockErr is returned from WithEventLock while failLocks > 0.
	lockErr   error
	failLocks int
}

func newEventStoreStub(events ...*models.Event) *eventStoreStub {
	s := &eventStoreStub{
		events: make(map[string]*models.Event),
		regs:   make(map[string]*models.EventRegistration),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, e := range events {
		s.events[e.ID] = e
		s.locks[e.ID] = &sync.Mutex{}
	}
	return s
}

func (s *eventStoreStub) FindByID(_ context.Context, id string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("find event: %w", sql.ErrNoRows)
	}
	copied := *event
	return &copied, nil
}

func (s *eventStoreStub) CountByStatus(_ context.Context, eventID string) (map[models.RegistrationStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.RegistrationStatus]int)
	for _, reg := range s.regs {
		if reg.EventID == eventID {
			counts[reg.Status]++
		}
	}
	return counts, nil
}

func (s *eventStoreStub) WithEventLock(ctx context.Context, eventID string, fn func(repository.EventScope) error) error {
	s.mu.Lock()
	if s.failLocks > 0 {
		s.failLocks--
		err := s.lockErr
		s.mu.Unlock()
		return err
	}
	lock, ok := s.locks[eventID]
	event := s.events[eventID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("lock event: %w", sql.ErrNoRows)
	}

	lock.Lock()
	defer lock.Unlock()

	copied := *event
	scope := &eventScopeStub{store: s, event: &copied, updates: make(map[string]models.EventRegistration)}
	if err := fn(scope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range scope.inserts {
		r := reg
		s.regs[r.ID] = &r
	}
	for id, reg := range scope.updates {
		r := reg
		s.regs[id] = &r
	}
	return nil
}

func (s *eventStoreStub) FindRegistration(_ context.Context, id string) (*models.EventRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, fmt.Errorf("find registration: %w", sql.ErrNoRows)
	}
	copied := *reg
	return &copied, nil
}

func (s *eventStoreStub) statuses(eventID string) map[models.RegistrationStatus]int {
	counts, _ := s.CountByStatus(context.Background(), eventID)
	return counts
}

// registrationReaderStub adapts eventStoreStub to registrationReader.
type registrationReaderStub struct {
	store *eventStoreStub
}

func (r registrationReaderStub) FindByID(ctx context.Context, id string) (*models.EventRegistration, error) {
	return r.store.FindRegistration(ctx, id)
}

func (r registrationReaderStub) List(_ context.Context, filter models.RegistrationFilter) ([]models.EventRegistration, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.EventRegistration
	for _, reg := range r.store.regs {
		if filter.EventID != "" && reg.EventID != filter.EventID {
			continue
		}
		if filter.UserID != "" && reg.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegistrationDate.Before(out[j].RegistrationDate) })
	return out, len(out), nil
}

type eventScopeStub struct {
	store   *eventStoreStub
	event   *models.Event
	inserts []models.EventRegistration
	updates map[string]models.EventRegistration
}

// view returns the registrations of the event as seen inside the scope.
func (s *eventScopeStub) view() []models.EventRegistration {
	s.store.mu.Lock()
	var out []models.EventRegistration
	for id, reg := range s.store.regs {
		if reg.EventID != s.event.ID {
			continue
		}
		if updated, ok := s.updates[id]; ok {
			out = append(out, updated)
			continue
		}
		out = append(out, *reg)
	}
	s.store.mu.Unlock()
	out = append(out, s.inserts...)
	sort.Slice(out, func(i, j int) bool { return out[i].RegistrationDate.Before(out[j].RegistrationDate) })
	return out
}

func (s *eventScopeStub) Event() *models.Event {
	return s.event
}

func (s *eventScopeStub) CountByStatus(_ context.Context, status models.RegistrationStatus) (int, error) {
	total := 0
	for _, reg := range s.view() {
		if reg.Status == status {
			total++
		}
	}
	return total, nil
}

func (s *eventScopeStub) FindActiveRegistration(_ context.Context, userID string) (*models.EventRegistration, error) {
	for _, reg := range s.view() {
		if reg.UserID == userID && reg.Status.Active() {
			r := reg
			return &r, nil
		}
	}
	return nil, nil
}

func (s *eventScopeStub) LockRegistration(_ context.Context, id string) (*models.EventRegistration, error) {
	for _, reg := range s.view() {
		if reg.ID == id {
			r := reg
			return &r, nil
		}
	}
	return nil, fmt.Errorf("lock registration: %w", sql.ErrNoRows)
}

func (s *eventScopeStub) OldestWaitlisted(_ context.Context) (*models.EventRegistration, error) {
	for _, reg := range s.view() {
		if reg.Status == models.RegistrationWaitlist {
			r := reg
			return &r, nil
		}
	}
	return nil, nil
}

func (s *eventScopeStub) InsertRegistration(_ context.Context, reg *models.EventRegistration) error {
	s.store.mu.Lock()
	s.store.seq++
	seq := s.store.seq
	s.store.mu.Unlock()
	reg.ID = fmt.Sprintf("reg-%d", seq)
	reg.EventID = s.event.ID
	reg.RegistrationDate = testNow.Add(time.Duration(seq) * time.Second)
	reg.UpdatedAt = reg.RegistrationDate
	s.inserts = append(s.inserts, *reg)
	return nil
}

func (s *eventScopeStub) UpdateRegistrationStatus(ctx context.Context, id string, expected, next models.RegistrationStatus) (*models.EventRegistration, error) {
	current, err := s.LockRegistration(ctx, id)
	if err != nil || current.Status != expected {
		return nil, repository.ErrStaleStatus
	}
	current.Status = next
	s.updates[id] = *current
	return current, nil
}

type jobReaderStub map[string]*models.JobPosting

func (s jobReaderStub) FindByID(_ context.Context, id string) (*models.JobPosting, error) {
	job, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("find job posting: %w", sql.ErrNoRows)
	}
	copied := *job
	return &copied, nil
}

type applicationStoreStub struct {
	mu   sync.Mutex
	rows map[string]*models.JobApplication
	seq  int
	// staleOnce makes the next UpdateStatus miss its CAS after applying this status.
	staleOnce models.ApplicationStatus
}

func newApplicationStoreStub() *applicationStoreStub {
	return &applicationStoreStub{rows: make(map[string]*models.JobApplication)}
}

func (s *applicationStoreStub) Create(_ context.Context, app *models.JobApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.JobID == app.JobID && row.ApplicantID == app.ApplicantID && row.Status.Active() {
			return fmt.Errorf("create job application: %w", &pq.Error{Code: "23505"})
		}
	}
	s.seq++
	app.ID = fmt.Sprintf("app-%d", s.seq)
	stored := *app
	s.rows[app.ID] = &stored
	return nil
}

func (s *applicationStoreStub) FindByID(_ context.Context, id string) (*models.JobApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("find job application: %w", sql.ErrNoRows)
	}
	copied := *row
	return &copied, nil
}

func (s *applicationStoreStub) FindActive(_ context.Context, jobID, applicantID string) (*models.JobApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.JobID == jobID && row.ApplicantID == applicantID && row.Status.Active() {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *applicationStoreStub) UpdateStatus(_ context.Context, id string, expected, next models.ApplicationStatus) (*models.JobApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrStaleStatus
	}
	if s.staleOnce != "" {
		row.Status = s.staleOnce
		s.staleOnce = ""
		return nil, repository.ErrStaleStatus
	}
	if row.Status != expected {
		return nil, repository.ErrStaleStatus
	}
	row.Status = next
	copied := *row
	return &copied, nil
}

func (s *applicationStoreStub) List(_ context.Context, filter models.ApplicationFilter) ([]models.JobApplication, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.JobApplication
	for _, row := range s.rows {
		if filter.JobID != "" && row.JobID != filter.JobID {
			continue
		}
		if filter.ApplicantID != "" && row.ApplicantID != filter.ApplicantID {
			continue
		}
		out = append(out, *row)
	}
	return out, len(out), nil
}
