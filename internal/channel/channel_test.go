package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type recorder struct {
	mu    sync.Mutex
	moves []entity.Move
}

func (that *recorder) handle(move entity.Move) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.moves = append(that.moves, move)
}

func (that *recorder) seqs() []uint64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	seqs := make([]uint64, 0, len(that.moves))
	for _, move := range that.moves {
		seqs = append(seqs, move.Seq)
	}

	return seqs
}

func move(seq uint64, x, y int) entity.Move {
	color := entity.Black
	if seq%2 == 0 {
		color = entity.White
	}

	return entity.Move{X: x, Y: y, Color: color, Seq: seq, PlayedAt: time.Unix(int64(seq), 0).UTC()}
}

// runChannelContract checks the behavior every Channel implementation shares.
func runChannelContract(t *testing.T, ctx context.Context, ch Channel) {
	t.Helper()

	t.Run("CreateAndJoin", func(t *testing.T) {
		// Given: a room created by alice
		color, err := ch.CreateSession(ctx, "create", "alice")
		require.NoError(t, err)
		assert.Equal(t, entity.Black, color)

		// When: bob joins, alice rejoins and carol tries to join
		bobColor, err := ch.JoinSession(ctx, "create", "bob")
		require.NoError(t, err)

		aliceColor, err := ch.JoinSession(ctx, "create", "alice")
		require.NoError(t, err)

		_, carolErr := ch.JoinSession(ctx, "create", "carol")

		// Then: seats are stable and the third player is rejected
		assert.Equal(t, entity.White, bobColor)
		assert.Equal(t, entity.Black, aliceColor)
		require.ErrorIs(t, carolErr, apperror.ErrRoomFull)

		room, moves, err := ch.LoadSession(ctx, "create")
		require.NoError(t, err)
		assert.Equal(t, "alice", room.BlackID)
		assert.Equal(t, "bob", room.WhiteID)
		assert.Empty(t, moves)
	})

	t.Run("DuplicateRoom", func(t *testing.T) {
		_, err := ch.CreateSession(ctx, "dup", "alice")
		require.NoError(t, err)

		_, err = ch.CreateSession(ctx, "dup", "bob")
		require.ErrorIs(t, err, apperror.ErrRoomAlreadyExists)
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		_, err := ch.JoinSession(ctx, "missing", "bob")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		err = ch.PublishMove(ctx, "missing", move(1, 7, 7))
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, _, err = ch.LoadSession(ctx, "missing")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("PublishCompareAndAppend", func(t *testing.T) {
		_, err := ch.CreateSession(ctx, "append", "alice")
		require.NoError(t, err)

		// Given: the first move is committed
		require.NoError(t, ch.PublishMove(ctx, "append", move(1, 7, 7)))

		// When: the same move is retried
		err = ch.PublishMove(ctx, "append", move(1, 7, 7))

		// Then: the retry is acknowledged without a second entry
		require.NoError(t, err)

		// When: a different move claims the same seq
		err = ch.PublishMove(ctx, "append", move(1, 3, 3))

		// Then: it conflicts
		require.ErrorIs(t, err, apperror.ErrSequenceConflict)

		// When: a move skips a seq
		err = ch.PublishMove(ctx, "append", move(3, 4, 4))

		// Then: it conflicts as well
		require.ErrorIs(t, err, apperror.ErrSequenceConflict)

		require.NoError(t, ch.PublishMove(ctx, "append", move(2, 7, 8)))

		_, moves, err := ch.LoadSession(ctx, "append")
		require.NoError(t, err)
		require.Len(t, moves, 2)
		assert.True(t, moves[0].SamePlacement(move(1, 7, 7)))
		assert.True(t, moves[1].SamePlacement(move(2, 7, 8)))
	})

	t.Run("SubscribeInCommitOrder", func(t *testing.T) {
		_, err := ch.CreateSession(ctx, "feed", "alice")
		require.NoError(t, err)

		first, second := &recorder{}, &recorder{}

		cancelFirst, err := ch.Subscribe(ctx, "feed", first.handle)
		require.NoError(t, err)
		defer cancelFirst()

		cancelSecond, err := ch.Subscribe(ctx, "feed", second.handle)
		require.NoError(t, err)

		// When: ten moves are committed
		for seq := uint64(1); seq <= 10; seq++ {
			require.NoError(t, ch.PublishMove(ctx, "feed", move(seq, int(seq), 0)))
		}

		// Then: both subscribers see them all, in order
		expected := []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual(expected, first.seqs()) && assert.ObjectsAreEqual(expected, second.seqs())
		}, waitFor, 10*time.Millisecond)

		// When: the second subscriber cancels
		cancelSecond()
		require.NoError(t, ch.PublishMove(ctx, "feed", move(11, 11, 0)))

		// Then: only the first one keeps receiving
		assert.Eventually(t, func() bool {
			return len(first.seqs()) == 11
		}, waitFor, 10*time.Millisecond)
		assert.Len(t, second.seqs(), 10)
	})

	t.Run("SubscribeUnknownRoom", func(t *testing.T) {
		_, err := ch.Subscribe(ctx, "nowhere", func(entity.Move) {})
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}
