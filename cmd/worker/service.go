package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type runner interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Logger  *logger.Logger
	DB      pinger
	Redis   pinger
	PubSub  pinger
	Refunds runner
}

// Service runs the refund consumer once every dependency answers a ping.
type Service struct {
	logg    *logger.Logger
	db      pinger
	redis   pinger
	pubsub  pinger
	refunds runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Refunds == nil {
		return nil, errors.New("refund worker is required")
	}
	return &Service{
		logg:    params.Logger,
		db:      params.DB,
		redis:   params.Redis,
		pubsub:  params.PubSub,
		refunds: params.Refunds,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"redis", s.redis.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := pingDependency(ctx, s.logg, dep.name, dep.fn); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "worker.dependencies.ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(logg.WithField(ctx, "dependency", name), "worker.dependency.unavailable", err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is cancelled or the refund consumer stops.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	s.logg.Info(ctx, "worker.refunds.started")
	err := s.refunds.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "worker.refunds.stopped", err)
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.New("refund consumer stopped without cancellation")
}
