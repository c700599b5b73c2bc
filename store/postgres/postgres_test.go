package postgres_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/store/postgres"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Tests in this package need a live PostgreSQL server. Point
// POSTGRES_TEST_DSN at one to run them; they are skipped otherwise.
// Employee IDs are uuid-suffixed so runs never interfere.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func uniqueEmployee(prefix string) vacation.EmployeeID {
	return vacation.EmployeeID(prefix + "-" + uuid.NewString())
}

func date(t *testing.T, s string) calendar.Date {
	t.Helper()
	d, err := calendar.ParseDate(s)
	require.NoError(t, err)
	return d
}

func putAllowance(t *testing.T, store *postgres.Store, id vacation.EmployeeID) {
	t.Helper()
	err := store.PutAllowance(context.Background(), &vacation.AllowanceRecord{
		ID: uuid.NewString(), EmployeeID: id, Year: 2026, TotalDays: 26,
	})
	require.NoError(t, err)
}

func approvedRequest(t *testing.T, emp vacation.EmployeeID, start, end string) *vacation.Request {
	t.Helper()
	now := time.Now().UTC()
	return &vacation.Request{
		ID:           vacation.RequestID(uuid.NewString()),
		EmployeeID:   emp,
		Start:        date(t, start),
		End:          date(t, end),
		BusinessDays: calendar.CountBusinessDays(date(t, start), date(t, end), calendar.NoHolidays{}),
		Status:       vacation.StatusApproved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestPostgres_RequestRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emp := uniqueEmployee("emp")
	req := approvedRequest(t, emp, "2026-06-01", "2026-06-05")
	require.NoError(t, store.InsertRequest(ctx, req))

	loaded, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, emp, loaded.EmployeeID)
	assert.True(t, req.Start.Equal(loaded.Start))
	assert.Equal(t, 5, loaded.BusinessDays)
	assert.Equal(t, vacation.StatusApproved, loaded.Status)
}

// =============================================================================
// TEAM SERIALIZATION
// =============================================================================

func TestWithTx_TeamOccupancyReadsSerialize(t *testing.T) {
	// Two transactions approving requests for DIFFERENT members of the
	// same team must not both validate against the pre-existing approved
	// set. The tx-scoped ApprovedRequestsInRange locks every member's
	// allowance rows, so the second transaction blocks until the first
	// commits and then sees its approval.
	store := newTestStore(t)
	ctx := context.Background()

	memberA := uniqueEmployee("member-a")
	memberB := uniqueEmployee("member-b")
	members := []vacation.EmployeeID{memberA, memberB}
	putAllowance(t, store, memberA)
	putAllowance(t, store, memberB)

	start, end := date(t, "2026-06-01"), date(t, "2026-06-05")

	var firstCommitted atomic.Bool
	locked := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		err := store.WithTx(ctx, func(tx vacation.Store) error {
			if _, err := tx.ApprovedRequestsInRange(ctx, members, start, end); err != nil {
				return err
			}
			if err := tx.InsertRequest(ctx, approvedRequest(t, memberA, "2026-06-01", "2026-06-05")); err != nil {
				return err
			}
			close(locked)
			// Hold the locks while the competing transaction starts.
			time.Sleep(300 * time.Millisecond)
			// Flag before returning: the commit that releases the row
			// locks happens strictly after this.
			firstCommitted.Store(true)
			return nil
		})
		done <- err
	}()

	<-locked
	err := store.WithTx(ctx, func(tx vacation.Store) error {
		byMember, err := tx.ApprovedRequestsInRange(ctx, members, start, end)
		if err != nil {
			return err
		}
		assert.True(t, firstCommitted.Load(),
			"occupancy read must block until the competing approval commits")
		assert.Len(t, byMember[memberA], 1,
			"occupancy read must see the committed approval")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-done)
}
