package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagingOrder_NoPrecursorsRunsImmediately(t *testing.T) {
	m := NewManager(0)

	ran := false
	err := m.ManagingOrder(context.Background(), Resource{ID: "db", Consumer: "writer"}, func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, ran)
	require.True(t, m.CheckedOut("db", "writer"))
}

func TestManagingOrder_WaitsForPrecursor(t *testing.T) {
	m := NewManager(0)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := m.ManagingOrder(context.Background(), Resource{
			ID:         "db",
			Precursors: []string{"writer"},
			Consumer:   "reader",
		}, func(context.Context) error {
			record("reader")
			return nil
		})
		require.NoError(t, err)
	}()

	// Give the reader a chance to block before the writer runs.
	time.Sleep(20 * time.Millisecond)

	err := m.ManagingOrder(context.Background(), Resource{ID: "db", Consumer: "writer"}, func(context.Context) error {
		record("writer")
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader never unblocked after its precursor checked out")
	}

	require.Equal(t, []string{"writer", "reader"}, order)
}

func TestManagingOrder_ChainOfThree(t *testing.T) {
	m := NewManager(0)

	var mu sync.Mutex
	var order []string
	run := func(res Resource, errs chan<- error) {
		errs <- m.ManagingOrder(context.Background(), res, func(context.Context) error {
			mu.Lock()
			order = append(order, res.Consumer)
			mu.Unlock()
			return nil
		})
	}

	errs := make(chan error, 3)
	go run(Resource{ID: "file", Precursors: []string{"second"}, Consumer: "third"}, errs)
	go run(Resource{ID: "file", Precursors: []string{"first"}, Consumer: "second"}, errs)
	time.Sleep(20 * time.Millisecond)
	go run(Resource{ID: "file", Consumer: "first"}, errs)

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("chain stalled")
		}
	}

	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestManagingOrder_DistinctResourcesIndependent(t *testing.T) {
	m := NewManager(0)

	// The consumer of "a" waits on a precursor that only ever checks out on
	// "b"; the identifiers partition the order metadata.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	m.CheckOut("b", "writer")

	err := m.ManagingOrder(ctx, Resource{
		ID:         "a",
		Precursors: []string{"writer"},
		Consumer:   "reader",
	}, func(context.Context) error { return nil })

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManagingOrder_ContextCancel(t *testing.T) {
	m := NewManager(0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.ManagingOrder(ctx, Resource{
			ID:         "db",
			Precursors: []string{"never"},
			Consumer:   "reader",
		}, func(context.Context) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	// The body never ran, so the consumer was not checked out.
	require.False(t, m.CheckedOut("db", "reader"))
}

func TestManagingOrder_BoundedWaitTimesOut(t *testing.T) {
	m := NewManager(30 * time.Millisecond)

	err := m.ManagingOrder(context.Background(), Resource{
		ID:         "db",
		Precursors: []string{"ghost-writer"},
		Consumer:   "reader",
	}, func(context.Context) error { return nil })

	require.ErrorIs(t, err, ErrWaitTimeout)
	require.Contains(t, err.Error(), "ghost-writer")
	require.Contains(t, err.Error(), `"db"`)
}

func TestManagingOrder_BodyErrorStillChecksOut(t *testing.T) {
	m := NewManager(0)

	wantErr := context.DeadlineExceeded
	err := m.ManagingOrder(context.Background(), Resource{ID: "db", Consumer: "writer"}, func(context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// Failure of the body must not wedge later consumers.
	require.True(t, m.CheckedOut("db", "writer"))

	err = m.ManagingOrder(context.Background(), Resource{
		ID:         "db",
		Precursors: []string{"writer"},
		Consumer:   "reader",
	}, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestCheckOut_ReleasesWaiters(t *testing.T) {
	m := NewManager(0)

	done := make(chan error, 1)
	go func() {
		done <- m.ManagingOrder(context.Background(), Resource{
			ID:         "db",
			Precursors: []string{"loader"},
			Consumer:   "reader",
		}, func(context.Context) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)

	// Direct checkout stands in for a participant that will never execute.
	m.CheckOut("db", "loader")
	m.CheckOut("db", "loader")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by direct checkout")
	}
}

func TestManagingOrder_SatisfiedConsumersRunConcurrently(t *testing.T) {
	m := NewManager(0)
	m.CheckOut("db", "seed")

	// Two consumers whose precursors are satisfied must not serialize on each
	// other: both bodies are entered before either returns.
	entered := make(chan string, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup
	for _, name := range []string{"left", "right"} {
		wg.Add(1)
		go func(consumer string) {
			defer wg.Done()
			_ = m.ManagingOrder(context.Background(), Resource{
				ID:         "db",
				Precursors: []string{"seed"},
				Consumer:   consumer,
			}, func(context.Context) error {
				entered <- consumer
				<-release
				return nil
			})
		}(name)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("satisfied consumers serialized against each other")
		}
	}
	close(release)
	wg.Wait()
}
