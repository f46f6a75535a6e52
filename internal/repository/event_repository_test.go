package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-network-api/internal/models"
)

var (
	eventRowColumns        = []string{"id", "title", "organizer_id", "status", "start_date", "end_date", "registration_deadline", "max_attendees", "requires_approval", "is_public"}
	registrationRowColumns = []string{"id", "event_id", "user_id", "status", "special_requirements", "registration_date", "updated_at"}
)

func expectEventLock(mock sqlmock.Sqlmock, eventID string, maxAttendees interface{}) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('lock_timeout', $1, true)")).
		WithArgs("2000ms").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1 FOR UPDATE")).
		WithArgs(eventID).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(eventID, "Reunion", "organizer-1", "published", nil, nil, nil, maxAttendees, false, true))
}

func TestEventRepositoryWithEventLockCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 2*time.Second)
	expectEventLock(mock, "event-1", 10)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = $2")).
		WithArgs("event-1", models.RegistrationRegistered).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_registrations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var inserted models.EventRegistration
	err := repo.WithEventLock(context.Background(), "event-1", func(scope EventScope) error {
		require.NotNil(t, scope.Event().MaxAttendees)
		assert.Equal(t, 10, *scope.Event().MaxAttendees)
		count, err := scope.CountByStatus(context.Background(), models.RegistrationRegistered)
		if err != nil {
			return err
		}
		assert.Equal(t, 3, count)
		inserted = models.EventRegistration{UserID: "user-1", Status: models.RegistrationRegistered}
		return scope.InsertRegistration(context.Background(), &inserted)
	})
	require.NoError(t, err)
	assert.Equal(t, "event-1", inserted.EventID)
	assert.NotEmpty(t, inserted.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryWithEventLockRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 2*time.Second)
	expectEventLock(mock, "event-1", nil)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.WithEventLock(context.Background(), "event-1", func(scope EventScope) error {
		assert.Nil(t, scope.Event().MaxAttendees)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventScopePromotionQueries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 2*time.Second)
	now := time.Now()
	expectEventLock(mock, "event-1", 1)
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_registrations WHERE id = $1 AND event_id = $2 FOR UPDATE")).
		WithArgs("reg-1", "event-1").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).AddRow("reg-1", "event-1", "user-1", "registered", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE event_registrations SET status = $1")).
		WithArgs(models.RegistrationCancelled, sqlmock.AnyArg(), "reg-1", "event-1", models.RegistrationRegistered).
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).AddRow("reg-1", "event-1", "user-1", "cancelled", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY registration_date ASC, id ASC")).
		WithArgs("event-1").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).AddRow("reg-2", "event-1", "user-2", "waitlist", nil, now, now))
	mock.ExpectCommit()

	err := repo.WithEventLock(context.Background(), "event-1", func(scope EventScope) error {
		reg, err := scope.LockRegistration(context.Background(), "reg-1")
		require.NoError(t, err)
		assert.Equal(t, models.RegistrationRegistered, reg.Status)

		cancelled, err := scope.UpdateRegistrationStatus(context.Background(), "reg-1", models.RegistrationRegistered, models.RegistrationCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.RegistrationCancelled, cancelled.Status)

		next, err := scope.OldestWaitlisted(context.Background())
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, "reg-2", next.ID)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 0)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WithArgs("event-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow("registered", 4).
			AddRow("waitlist", 2))

	counts, err := repo.CountByStatus(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.RegistrationRegistered])
	assert.Equal(t, 2, counts[models.RegistrationWaitlist])
	assert.Zero(t, counts[models.RegistrationCancelled])
	require.NoError(t, mock.ExpectationsWereMet())
}
