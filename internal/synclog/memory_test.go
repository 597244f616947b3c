package synclog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAction(companyID string, ts int64) Action {
	return Action{
		ID:        fmt.Sprintf("%s-%d", companyID, ts),
		Type:      ActionUpdate,
		Module:    "guests",
		EntityID:  "e1",
		CompanyID: companyID,
		UserID:    "u1",
		Timestamp: ts,
	}
}

func TestMemoryLog_StoreAndMissedSince(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	require.NoError(t, log.Store(ctx, makeAction("c1", 100)))
	require.NoError(t, log.Store(ctx, makeAction("c1", 200)))
	require.NoError(t, log.Store(ctx, makeAction("c1", 300)))

	t.Run("since is exclusive", func(t *testing.T) {
		actions, err := log.MissedSince(ctx, "c1", 100)
		require.NoError(t, err)
		require.Len(t, actions, 2)
		assert.Equal(t, int64(200), actions[0].Timestamp)
		assert.Equal(t, int64(300), actions[1].Timestamp)
	})

	t.Run("since zero returns everything", func(t *testing.T) {
		actions, err := log.MissedSince(ctx, "c1", 0)
		require.NoError(t, err)
		assert.Len(t, actions, 3)
	})

	t.Run("since past the newest returns nothing", func(t *testing.T) {
		actions, err := log.MissedSince(ctx, "c1", 300)
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("unknown company returns nothing", func(t *testing.T) {
		actions, err := log.MissedSince(ctx, "unknown", 0)
		require.NoError(t, err)
		assert.Empty(t, actions)
	})
}

func TestMemoryLog_OutOfOrderStoresSortByTimestamp(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	require.NoError(t, log.Store(ctx, makeAction("c1", 300)))
	require.NoError(t, log.Store(ctx, makeAction("c1", 100)))
	require.NoError(t, log.Store(ctx, makeAction("c1", 200)))

	actions, err := log.MissedSince(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, int64(100), actions[0].Timestamp)
	assert.Equal(t, int64(200), actions[1].Timestamp)
	assert.Equal(t, int64(300), actions[2].Timestamp)
}

func TestMemoryLog_CapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	const extra = 5
	for i := 1; i <= MaxActionsPerCompany+extra; i++ {
		require.NoError(t, log.Store(ctx, makeAction("c1", int64(i))))
	}

	actions, err := log.MissedSince(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, actions, MaxActionsPerCompany)

	// The oldest entries fell off; the window starts after them.
	assert.Equal(t, int64(extra+1), actions[0].Timestamp)
	assert.Equal(t, int64(MaxActionsPerCompany+extra), actions[len(actions)-1].Timestamp)
}

func TestMemoryLog_CompanyIsolation(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	require.NoError(t, log.Store(ctx, makeAction("c1", 100)))
	require.NoError(t, log.Store(ctx, makeAction("c2", 200)))

	c1, err := log.MissedSince(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "c1", c1[0].CompanyID)

	c2, err := log.MissedSince(ctx, "c2", 0)
	require.NoError(t, err)
	require.Len(t, c2, 1)
	assert.Equal(t, "c2", c2[0].CompanyID)
}

func TestMemoryLog_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	base := time.Now()
	log.now = func() time.Time { return base }

	require.NoError(t, log.Store(ctx, makeAction("c1", 100)))

	// Still there just inside the TTL.
	log.now = func() time.Time { return base.Add(ActionTTL - time.Minute) }
	actions, err := log.MissedSince(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	// Whole log gone once the TTL lapses.
	log.now = func() time.Time { return base.Add(ActionTTL + time.Minute) }
	actions, err = log.MissedSince(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestMemoryLog_TTLRefreshedOnStore(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	base := time.Now()
	log.now = func() time.Time { return base }
	require.NoError(t, log.Store(ctx, makeAction("c1", 100)))

	// A later write pushes the expiry out for the whole log.
	log.now = func() time.Time { return base.Add(23 * time.Hour) }
	require.NoError(t, log.Store(ctx, makeAction("c1", 200)))

	log.now = func() time.Time { return base.Add(25 * time.Hour) }
	actions, err := log.MissedSince(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}
