package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	return f.err
}

type fakeRunner struct {
	run func(context.Context) error
}

func (f fakeRunner) Run(ctx context.Context) error {
	return f.run(ctx)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunStopsOnUnavailableDependency(t *testing.T) {
	redis := &fakePinger{err: errors.New("connection refused")}
	started := false
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     &fakePinger{},
		Redis:  redis,
		PubSub: &fakePinger{},
		Refunds: fakeRunner{run: func(context.Context) error {
			started = true
			return nil
		}},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "redis ping failed")
	require.False(t, started)
}

func TestRunReturnsContextErrorOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     &fakePinger{},
		Redis:  &fakePinger{},
		PubSub: &fakePinger{},
		Refunds: fakeRunner{run: func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return nil
		}},
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestRunSurfacesConsumerFailure(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Logger:  testLogger(),
		DB:      &fakePinger{},
		Redis:   &fakePinger{},
		PubSub:  &fakePinger{},
		Refunds: fakeRunner{run: func(context.Context) error { return boom }},
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestNewServiceRequiresRefundWorker(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     &fakePinger{},
		Redis:  &fakePinger{},
		PubSub: &fakePinger{},
	})
	require.EqualError(t, err, "refund worker is required")
}
