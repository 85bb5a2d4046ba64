package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/channel"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/pkg"
	"github.com/rocketscienceinc/renju-backend/internal/session"
)

const (
	tracerName        = "github.com/rocketscienceinc/renju-backend/internal/usecase"
	maxRoomIDAttempts = 5
)

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
}

// room is the arbiter's handle on one session. mu serializes
// prepare, publish and commit for the room.
type room struct {
	mu      sync.Mutex
	session *session.Session
}

// MoveNotice is what a watcher learns about each committed move.
type MoveNotice struct {
	Move entity.Move
	Room entity.Room
}

// GameManager is the arbiter: the only place moves are validated and committed.
type GameManager struct {
	logger     *slog.Logger
	tracer     trace.Tracer
	playerRepo playerRepo
	channel    channel.Channel

	roomsMutex sync.Mutex
	rooms      map[string]*room
}

func NewGameManager(logger *slog.Logger, playerRepo playerRepo, ch channel.Channel) *GameManager {
	return &GameManager{
		logger:     logger.With("component", "game_manager"),
		tracer:     otel.Tracer(tracerName),
		playerRepo: playerRepo,
		channel:    ch,

		rooms: make(map[string]*room),
	}
}

// GetOrCreatePlayer resumes a known player or mints a new one. An empty id always mints.
func (that *GameManager) GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error) {
	if id != "" {
		player, err := that.playerRepo.GetByID(ctx, id)
		if err == nil {
			return player, nil
		}

		if !errors.Is(err, apperror.ErrPlayerNotFound) {
			return nil, fmt.Errorf("failed to get player: %w", err)
		}
	} else {
		id = pkg.GenerateNewSessionID()
	}

	player := &entity.Player{ID: id}
	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

// CreateRoom opens a room with the player as Black. A player still in an
// unfinished room gets that room back instead.
func (that *GameManager) CreateRoom(ctx context.Context, playerID string) (*entity.Player, session.Snapshot, error) {
	ctx, span := that.tracer.Start(ctx, "GameManager.CreateRoom", trace.WithAttributes(attribute.String("player.id", playerID)))
	defer span.End()

	log := that.logger.With("method", "CreateRoom", "playerID", playerID)

	player, err := that.getPlayer(ctx, playerID)
	if err != nil {
		return nil, session.Snapshot{}, traced(span, err)
	}

	if player.InRoom() {
		if snapshot, err := that.Snapshot(ctx, player.RoomID); err == nil {
			if !snapshot.Room.IsFinished() {
				log.Info("player is already in a room", "roomID", player.RoomID)
				return player, snapshot, nil
			}
		}
	}

	var roomID string
	for range maxRoomIDAttempts {
		candidate := pkg.GenerateRoomID()

		_, err = that.channel.CreateSession(ctx, candidate, player.ID)
		if errors.Is(err, apperror.ErrRoomAlreadyExists) {
			continue
		}

		if err != nil {
			return nil, session.Snapshot{}, traced(span, fmt.Errorf("failed to create session: %w", err))
		}

		roomID = candidate
		break
	}

	if roomID == "" {
		return nil, session.Snapshot{}, traced(span, fmt.Errorf("failed to pick a free room id: %w", apperror.ErrRoomAlreadyExists))
	}

	created := &room{session: session.New(roomID, player.ID)}
	snapshot := created.session.Snapshot()

	that.roomsMutex.Lock()
	that.rooms[roomID] = created
	that.roomsMutex.Unlock()

	player.RoomID = roomID
	player.Color = entity.Black
	if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, session.Snapshot{}, traced(span, fmt.Errorf("failed to update player: %w", err))
	}

	span.SetAttributes(attribute.String("room.id", roomID))
	log.Info("room created", "roomID", roomID)

	return player, snapshot, nil
}

// JoinRoom seats the player in the room. Rejoining returns the seat already held.
func (that *GameManager) JoinRoom(ctx context.Context, roomID, playerID string) (*entity.Player, session.Snapshot, error) {
	ctx, span := that.tracer.Start(ctx, "GameManager.JoinRoom", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("player.id", playerID),
	))
	defer span.End()

	log := that.logger.With("method", "JoinRoom", "roomID", roomID, "playerID", playerID)

	player, err := that.getPlayer(ctx, playerID)
	if err != nil {
		return nil, session.Snapshot{}, traced(span, err)
	}

	joined, err := that.getRoom(ctx, roomID)
	if err != nil {
		return nil, session.Snapshot{}, traced(span, err)
	}

	joined.mu.Lock()
	defer joined.mu.Unlock()

	if snapshot := joined.session.Snapshot(); snapshot.Room.IsFinished() {
		if _, seated := snapshot.Room.ColorOf(player.ID); !seated {
			return nil, session.Snapshot{}, traced(span, apperror.ErrGameOver)
		}
	}

	color, err := that.channel.JoinSession(ctx, roomID, player.ID)
	if err != nil {
		return nil, session.Snapshot{}, traced(span, fmt.Errorf("failed to join session: %w", err))
	}

	localColor, err := joined.session.Join(player.ID)
	if err != nil || localColor != color {
		// the seat was taken through another arbiter, the log is the truth
		log.Warn("local session is stale, reloading", "error", err)

		if err = that.reload(ctx, joined); err != nil {
			return nil, session.Snapshot{}, traced(span, err)
		}
	}

	player.RoomID = roomID
	player.Color = color
	if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, session.Snapshot{}, traced(span, fmt.Errorf("failed to update player: %w", err))
	}

	log.Info("player joined room", "color", color)

	return player, joined.session.Snapshot(), nil
}

// SubmitMove validates the move, appends it to the shared log and commits it.
// Nothing is committed unless the channel acknowledged the append.
func (that *GameManager) SubmitMove(ctx context.Context, playerID string, x, y int) (entity.Move, entity.Outcome, error) {
	ctx, span := that.tracer.Start(ctx, "GameManager.SubmitMove", trace.WithAttributes(
		attribute.String("player.id", playerID),
		attribute.Int("move.x", x),
		attribute.Int("move.y", y),
	))
	defer span.End()

	log := that.logger.With("method", "SubmitMove", "playerID", playerID)

	player, err := that.getPlayer(ctx, playerID)
	if err != nil {
		return entity.Move{}, entity.OngoingOutcome(), traced(span, err)
	}

	if !player.InRoom() {
		return entity.Move{}, entity.OngoingOutcome(), traced(span, apperror.ErrPlayerNotInRoom)
	}

	current, err := that.getRoom(ctx, player.RoomID)
	if err != nil {
		return entity.Move{}, entity.OngoingOutcome(), traced(span, err)
	}

	current.mu.Lock()
	defer current.mu.Unlock()

	for attempt := 0; ; attempt++ {
		move, err := current.session.Prepare(player.ID, x, y)
		if isStale(err) && attempt == 0 {
			if err = that.reload(ctx, current); err != nil {
				return entity.Move{}, entity.OngoingOutcome(), traced(span, err)
			}

			continue
		}

		if err != nil {
			return entity.Move{}, current.session.Snapshot().Room.Outcome, traced(span, err)
		}

		err = that.channel.PublishMove(ctx, player.RoomID, move)
		if errors.Is(err, apperror.ErrSequenceConflict) && attempt == 0 {
			log.Warn("sequence taken on the channel, reloading room", "seq", move.Seq)

			if err = that.reload(ctx, current); err != nil {
				return entity.Move{}, entity.OngoingOutcome(), traced(span, err)
			}

			continue
		}

		if err != nil {
			return entity.Move{}, current.session.Snapshot().Room.Outcome, traced(span, fmt.Errorf("failed to publish move: %w", err))
		}

		outcome, err := current.session.Commit(move)
		if err != nil {
			// the log already holds the move, so rebuild from it
			if reloadErr := that.reload(ctx, current); reloadErr != nil {
				log.Error("failed to reload room after commit failure", "error", reloadErr)
			}

			return entity.Move{}, outcome, traced(span, fmt.Errorf("failed to commit move: %w", err))
		}

		span.SetAttributes(attribute.Int64("move.seq", int64(move.Seq)), attribute.String("outcome.reason", string(outcome.Reason)))
		log.Debug("move committed", "roomID", player.RoomID, "seq", move.Seq, "color", move.Color)

		if outcome.IsDecided() {
			log.Info("game finished", "roomID", player.RoomID, "winner", outcome.Winner, "reason", outcome.Reason)
		}

		return move, outcome, nil
	}
}

// Snapshot returns the current state of a room.
func (that *GameManager) Snapshot(ctx context.Context, roomID string) (session.Snapshot, error) {
	current, err := that.getRoom(ctx, roomID)
	if err != nil {
		return session.Snapshot{}, err
	}

	current.mu.Lock()
	defer current.mu.Unlock()

	return current.session.Snapshot(), nil
}

// Watch calls notify for every move committed in the room after the call, with
// the room state right after that move. It follows the shared log through a
// replica session, so duplicates are dropped and gaps are refilled from the log.
func (that *GameManager) Watch(ctx context.Context, roomID string, notify func(MoveNotice)) (func(), error) {
	log := that.logger.With("method", "Watch", "roomID", roomID)

	var (
		mu      sync.Mutex
		replica *session.Session
		pending []entity.Move
	)

	deliver := func(move entity.Move) {
		_, applied, err := replica.Apply(move)
		if errors.Is(err, apperror.ErrSequenceGap) || errors.Is(err, apperror.ErrGameIsNotStarted) {
			// a gap in the feed, or the opponent joined after the replica was loaded
			log.Warn("replica is behind the log, catching up", "seq", move.Seq, "error", err)

			if caughtUp := that.catchUp(ctx, roomID, replica, notify); caughtUp != nil {
				replica = caughtUp
			}

			return
		}

		if err != nil {
			log.Error("failed to apply delivered move", "seq", move.Seq, "error", err)
			return
		}

		if applied {
			notify(MoveNotice{Move: move, Room: replica.Snapshot().Room})
		}
	}

	cancel, err := that.channel.Subscribe(ctx, roomID, func(move entity.Move) {
		mu.Lock()
		defer mu.Unlock()

		if replica == nil {
			pending = append(pending, move)
			return
		}

		deliver(move)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	record, moves, err := that.channel.LoadSession(ctx, roomID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	restored, err := session.Restore(*record, moves)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	mu.Lock()
	replica = restored
	for _, move := range pending {
		deliver(move)
	}
	pending = nil
	mu.Unlock()

	return cancel, nil
}

// catchUp rebuilds the replica from the current room record and log, and
// notifies the moves the replica had not seen. Returns nil if the log cannot be loaded.
func (that *GameManager) catchUp(ctx context.Context, roomID string, replica *session.Session, notify func(MoveNotice)) *session.Session {
	log := that.logger.With("method", "catchUp", "roomID", roomID)

	record, moves, err := that.channel.LoadSession(ctx, roomID)
	if err != nil {
		log.Error("failed to load session", "error", err)
		return nil
	}

	seen := min(replica.LastSeq(), uint64(len(moves)))

	fresh, err := session.Restore(*record, moves[:seen])
	if err != nil {
		log.Error("failed to restore session", "error", err)
		return nil
	}

	for _, move := range moves[seen:] {
		if _, _, err = fresh.Apply(move); err != nil {
			log.Error("failed to apply move from the log", "seq", move.Seq, "error", err)
			return fresh
		}

		notify(MoveNotice{Move: move, Room: fresh.Snapshot().Room})
	}

	return fresh
}

// getRoom returns the arbiter's session for the room, restoring it from the
// channel when this process has not seen the room yet.
// The channel is read without holding roomsMutex; if another caller restored
// the room meanwhile, its session wins.
func (that *GameManager) getRoom(ctx context.Context, roomID string) (*room, error) {
	that.roomsMutex.Lock()
	existing, ok := that.rooms[roomID]
	that.roomsMutex.Unlock()

	if ok {
		return existing, nil
	}

	record, moves, err := that.channel.LoadSession(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	restored, err := session.Restore(*record, moves)
	if err != nil {
		return nil, fmt.Errorf("failed to restore room: %w", err)
	}

	that.roomsMutex.Lock()
	defer that.roomsMutex.Unlock()

	if existing, ok = that.rooms[roomID]; ok {
		return existing, nil
	}

	loaded := &room{session: restored}
	that.rooms[roomID] = loaded

	return loaded, nil
}

// reload replaces the room's session with one rebuilt from the channel. Caller holds r.mu.
func (that *GameManager) reload(ctx context.Context, r *room) error {
	record, moves, err := that.channel.LoadSession(ctx, r.session.ID())
	if err != nil {
		return fmt.Errorf("failed to reload room: %w", err)
	}

	restored, err := session.Restore(*record, moves)
	if err != nil {
		return fmt.Errorf("failed to restore room: %w", err)
	}

	r.session = restored

	return nil
}

func (that *GameManager) getPlayer(ctx context.Context, id string) (*entity.Player, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return player, nil
}

// isStale reports rejections a session behind the shared log could produce.
func isStale(err error) bool {
	return errors.Is(err, apperror.ErrGameIsNotStarted) || errors.Is(err, apperror.ErrNotYourTurn)
}

func traced(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
