package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testCloser struct {
	closed int
	stopCh chan struct{}
}

func (c *testCloser) Close() error {
	c.closed++
	if c.stopCh != nil {
		close(c.stopCh)
	}
	return nil
}

func TestRunnerStopsAllOnFailure(t *testing.T) {
	failure := errors.New("failure")
	r := NewRunner()
	r.Go(
		NamedRun("blocking", RunnableFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		NamedRun("failing", RunnableFunc(func(context.Context) error {
			return failure
		})),
	)
	err := r.Wait()
	require.Error(t, err)
	require.True(t, errors.Is(err, failure))
	require.Contains(t, err.Error(), "failing")
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	for i := 0; i < 3; i++ {
		r.Go(RunnableFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	}
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, context.Canceled).Aggregate())
	e1, e2 := errors.New("e1"), errors.New("e2")
	errs.Add(e1)
	require.Equal(t, "e1", errs.Aggregate().Error())
	errs.Add(e2)
	require.Equal(t, "Multiple errors:\ne1\ne2", errs.Aggregate().Error())
	require.True(t, errors.Is(errs.Aggregate(), e2))
}

func TestRunWithContextCloser(t *testing.T) {
	t.Run("canceled", func(t *testing.T) {
		c := &testCloser{stopCh: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		err := RunWithContextCloser(ctx, c, func() error {
			<-c.stopCh
			return errors.New("closed")
		})
		require.Equal(t, context.Canceled, err)
		require.Equal(t, 1, c.closed)
	})

	t.Run("returned", func(t *testing.T) {
		c := &testCloser{}
		err := RunWithContextCloser(context.Background(), c, func() error {
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, c.closed)
	})
}
