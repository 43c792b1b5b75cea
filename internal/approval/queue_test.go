package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestQueue_ResolveWakesAwaiter(t *testing.T) {
	st := openTestStore(t)
	q := New(st)
	defer q.Close()

	a, err := q.Request(context.Background(), "fs.write", "step1", nil, nil, nil, "", store.SignatureUnsigned, time.Minute)
	require.NoError(t, err)

	result := make(chan store.Decision, 1)
	go func() {
		d, err := q.Await(context.Background(), a.ID)
		require.NoError(t, err)
		result <- d
	}()

	claimed, err := q.Resolve(context.Background(), a.ID, "alice", store.DecisionApproved, "fine")
	require.NoError(t, err)
	require.True(t, claimed)

	select {
	case d := <-result:
		require.Equal(t, store.DecisionApproved, d)
	case <-time.After(2 * time.Second):
		t.Fatal("awaiter was never woken")
	}
}

func TestQueue_SecondResolveLoses(t *testing.T) {
	st := openTestStore(t)
	q := New(st)
	defer q.Close()

	a, err := q.Request(context.Background(), "fs.write", "step1", nil, nil, nil, "", store.SignatureUnsigned, time.Minute)
	require.NoError(t, err)

	claimed1, err := q.Resolve(context.Background(), a.ID, "alice", store.DecisionApproved, "fine")
	require.NoError(t, err)
	require.True(t, claimed1)

	claimed2, err := q.Resolve(context.Background(), a.ID, "bob", store.DecisionDenied, "too late")
	require.NoError(t, err)
	require.False(t, claimed2)
}

func TestQueue_TTLExpiryWakesAwaiterWithTimeout(t *testing.T) {
	st := openTestStore(t)
	q := New(st)
	defer q.Close()

	a, err := q.Request(context.Background(), "fs.write", "step1", nil, nil, nil, "", store.SignatureUnsigned, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := q.Await(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, store.DecisionTimeout, d)
}

func TestQueue_RehydrateResumesAwaiterAcrossRestart(t *testing.T) {
	st := openTestStore(t)
	q1 := New(st)
	a, err := q1.Request(context.Background(), "fs.write", "step1", nil, nil, nil, "", store.SignatureUnsigned, time.Minute)
	require.NoError(t, err)
	q1.Close() // simulates process exit: in-memory notifiers and deadline heap are gone

	q2 := New(st)
	defer q2.Close()
	require.NoError(t, q2.Rehydrate(context.Background()))

	result := make(chan store.Decision, 1)
	go func() {
		d, err := q2.Await(context.Background(), a.ID)
		require.NoError(t, err)
		result <- d
	}()

	// Give the awaiter goroutine a chance to register before resolving.
	time.Sleep(20 * time.Millisecond)
	claimed, err := q2.Resolve(context.Background(), a.ID, "alice", store.DecisionApproved, "fine")
	require.NoError(t, err)
	require.True(t, claimed)

	select {
	case d := <-result:
		require.Equal(t, store.DecisionApproved, d)
	case <-time.After(2 * time.Second):
		t.Fatal("awaiter was never woken after rehydrate")
	}
}

func TestQueue_RehydrateEnforcesTTLOfPreExistingApproval(t *testing.T) {
	st := openTestStore(t)
	q1 := New(st)
	a, err := q1.Request(context.Background(), "fs.write", "step1", nil, nil, nil, "", store.SignatureUnsigned, 50*time.Millisecond)
	require.NoError(t, err)
	q1.Close()

	q2 := New(st)
	defer q2.Close()
	require.NoError(t, q2.Rehydrate(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := q2.Await(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, store.DecisionTimeout, d)
}
