package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
)

func emitN(t *testing.T, conn *gorm.DB, n int) {
	t.Helper()
	svc := NewService(NewRepository(conn), nil)
	for i := 0; i < n; i++ {
		require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		}))
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	emitN(t, conn, 3)

	batch, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, batch[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, batch[1].ID, errors.New("pubsub timeout")))
	require.NoError(t, repo.MarkTerminalTx(conn, batch[2].ID, errors.New("bad payload"), 5))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, batch[1].ID, pending[0].ID)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.Equal(t, "pubsub timeout", *pending[0].LastError)

	var published models.OutboxEvent
	require.NoError(t, conn.First(&published, "id = ?", batch[0].ID).Error)
	require.True(t, published.Published())
}

func TestRepositoryRequiresTransaction(t *testing.T) {
	repo := NewRepository(nil)
	require.Error(t, repo.Insert(nil, models.OutboxEvent{}))
	_, err := repo.FetchUnpublishedForPublish(nil, 1, 1)
	require.Error(t, err)
}
