package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/preorder-backend/api/middleware"
	"github.com/angelmondragon/preorder-backend/api/responses"
	"github.com/angelmondragon/preorder-backend/api/validators"
	internalrealtime "github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

const DefaultHeartbeat = 25 * time.Second

type restaurantLookup interface {
	Restaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
}

// Restaurant streams a restaurant's dashboard topic to its owner.
func Restaurant(sub internalrealtime.Subscriber, restaurants restaurantLookup, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		restaurantID, err := validators.URLUUID(r, "restaurantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		restaurant, err := restaurants.Restaurant(r.Context(), restaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if restaurant.OwnerID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant not owned by caller"))
			return
		}
		stream(w, r, sub, internalrealtime.RestaurantTopic(restaurantID), heartbeat, logg)
	}
}

// Me streams the caller's personal topic.
func Me(sub internalrealtime.Subscriber, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		stream(w, r, sub, internalrealtime.UserTopic(userID), heartbeat, logg)
	}
}

func stream(w http.ResponseWriter, r *http.Request, sub internalrealtime.Subscriber, topic string, heartbeat time.Duration, logg *logger.Logger) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
		return
	}

	subscription, err := sub.Subscribe(ctx, topic)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe"))
		return
	}
	defer subscription.Close()

	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", topic)
	flusher.Flush()

	logCtx := logg.WithField(ctx, "topic", topic)
	logg.Debug(logCtx, "realtime.stream.opened")
	defer logg.Debug(logCtx, "realtime.stream.closed")

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-subscription.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				logg.Warn(logg.WithField(logCtx, "error", err.Error()), "realtime.stream.write_failed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event internalrealtime.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, payload)
	return err
}
