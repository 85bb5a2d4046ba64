package repository

import (
	"testing"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRepository_CreateAndGet(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Storage)

	// Given: a new room
	room := entity.NewRoom("ABC123", "alice", time.Unix(1700000000, 0).UTC())

	// When: Create is called
	err := roomRepo.Create(ctx, room)

	// Then: it is stored and can be read back
	require.NoError(t, err)

	stored, err := roomRepo.GetByID(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, room, stored)

	t.Run("Create_AlreadyExists", func(t *testing.T) {
		err := roomRepo.Create(ctx, entity.NewRoom("ABC123", "bob", time.Now().UTC()))
		require.ErrorIs(t, err, apperror.ErrRoomAlreadyExists)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		room, err := roomRepo.GetByID(ctx, "NOPE00")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
		assert.Nil(t, room)
	})
}

func TestRoomRepository_Join(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Storage)
	require.NoError(t, roomRepo.Create(ctx, entity.NewRoom("ROOM01", "alice", time.Now().UTC())))

	// When: bob joins, then joins again
	color, err := roomRepo.Join(ctx, "ROOM01", "bob")
	require.NoError(t, err)
	again, err := roomRepo.Join(ctx, "ROOM01", "bob")
	require.NoError(t, err)

	// Then: bob holds White and the room is in progress
	assert.Equal(t, entity.White, color)
	assert.Equal(t, entity.White, again)

	room, err := roomRepo.GetByID(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, "bob", room.WhiteID)
	assert.Equal(t, entity.StatusInProgress, room.Status)

	// When: a third player tries to join
	_, err = roomRepo.Join(ctx, "ROOM01", "carol")

	// Then: the room is full
	require.ErrorIs(t, err, apperror.ErrRoomFull)

	_, err = roomRepo.Join(ctx, "NOPE00", "carol")
	require.ErrorIs(t, err, apperror.ErrRoomNotFound)
}

func TestRoomRepository_AppendMove(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Storage)
	require.NoError(t, roomRepo.Create(ctx, entity.NewRoom("ROOM01", "alice", time.Now().UTC())))

	first := entity.Move{X: 7, Y: 7, Color: entity.Black, Seq: 1, PlayedAt: time.Unix(1, 0).UTC()}
	second := entity.Move{X: 7, Y: 8, Color: entity.White, Seq: 2, PlayedAt: time.Unix(2, 0).UTC()}

	// Given: the feed is subscribed before anything is appended
	pubsub := st.Storage.Subscribe(ctx, FeedChannel("ROOM01"))
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	// When: two moves are appended in order
	require.NoError(t, roomRepo.AppendMove(ctx, "ROOM01", first))
	require.NoError(t, roomRepo.AppendMove(ctx, "ROOM01", second))

	// Then: both are listed and published
	moves, err := roomRepo.ListMoves(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, []entity.Move{first, second}, moves)

	for range 2 {
		_, err = pubsub.ReceiveMessage(ctx)
		require.NoError(t, err)
	}

	t.Run("RetryIsAcknowledged", func(t *testing.T) {
		retry := first
		retry.PlayedAt = time.Unix(99, 0).UTC()

		require.NoError(t, roomRepo.AppendMove(ctx, "ROOM01", retry))

		moves, err := roomRepo.ListMoves(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Len(t, moves, 2)
	})

	t.Run("DifferentMoveConflicts", func(t *testing.T) {
		other := entity.Move{X: 1, Y: 1, Color: entity.White, Seq: 2}
		require.ErrorIs(t, roomRepo.AppendMove(ctx, "ROOM01", other), apperror.ErrSequenceConflict)
	})

	t.Run("GapConflicts", func(t *testing.T) {
		gap := entity.Move{X: 1, Y: 1, Color: entity.White, Seq: 5}
		require.ErrorIs(t, roomRepo.AppendMove(ctx, "ROOM01", gap), apperror.ErrSequenceConflict)
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		require.ErrorIs(t, roomRepo.AppendMove(ctx, "NOPE00", first), apperror.ErrRoomNotFound)
	})
}
