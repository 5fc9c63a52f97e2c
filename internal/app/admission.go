package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"quizroom/internal/domain"
)

const maxNameLength = 50

const (
	pendingMessage  = "Waiting for the host to let you in"
	approvedMessage = "The host let you in"
	deniedMessage   = "The host declined your request to join"
)

// HostJoin registers connID as the room's host of record, loading the quiz
// questions on first use, and returns the connected roster.
func (c *Coordinator) HostJoin(ctx context.Context, connID, code string) ([]domain.Player, error) {
	code = normalizeCode(code)
	if ref, ok := c.rooms.lookup(connID); ok && ref.role == rolePlayer {
		return nil, domain.ErrRoleConflict
	}
	room, _ := c.lockRoom(code, true)
	defer room.mu.Unlock()

	info, err := c.store.RoomInfo(ctx, code)
	if err == nil && !info.Active {
		err = domain.ErrRoomClosed
	}
	if err != nil {
		c.releaseIfUnused(ctx, room)
		return nil, err
	}

	if room.questions == nil {
		questions, err := c.questions.LoadQuestions(ctx, info.QuizID)
		if err != nil {
			c.releaseIfUnused(ctx, room)
			return nil, fmt.Errorf("load questions for quiz %d: %w", info.QuizID, err)
		}
		room.questions = questions
		room.quizID = info.QuizID
	}

	players, err := c.store.ListPlayers(ctx, code, true)
	if err != nil {
		c.releaseIfUnused(ctx, room)
		return nil, fmt.Errorf("list players %s: %w", code, err)
	}

	// The most recent host registration wins.
	if prev := room.host; prev != "" && prev != connID {
		if ref, ok := c.rooms.lookup(prev); ok && ref.role == roleHost && ref.roomCode == code {
			c.rooms.unbind(prev)
		}
	}
	room.host = connID
	c.rooms.bind(connID, connRef{roomCode: code, role: roleHost})
	c.notifier.Join(code, connID)
	if err := c.marker.MarkLive(ctx, code); err != nil {
		c.log.Warn("mark room live", "room", code, "err", err)
	}

	c.notifier.Send(connID, domain.EventPlayersList, players)
	c.notifier.Send(connID, domain.EventHostJoined, domain.HostJoined{RoomCode: code})
	for _, pending := range room.pending {
		c.notifier.Send(connID, domain.EventJoinRequest, domain.JoinRequestNotice{
			RequestID:  pending.id,
			PlayerName: pending.name,
			RoomCode:   code,
		})
	}
	c.sendQuestionLocked(room, connID, false)

	c.log.Info("host joined", "room", code, "conn", connID)
	return players, nil
}

// PlayerJoin admits connID under name, or parks it as a pending request when
// the quiz is already running.
func (c *Coordinator) PlayerJoin(ctx context.Context, connID string, req domain.PlayerJoinRequest) error {
	code := normalizeCode(req.RoomCode)
	name, err := normalizeName(req.PlayerName)
	if err != nil {
		return err
	}

	// A connection is one participant; moving rooms leaves the old one.
	ref, bound := c.rooms.lookup(connID)
	if bound && ref.role == roleHost {
		return domain.ErrRoleConflict
	}
	member := bound && ref.role == rolePlayer && ref.roomCode == code
	if bound && ref.role == rolePlayer && !member {
		if err := c.PlayerLeave(ctx, connID, ref.roomCode); err != nil {
			return err
		}
	}

	room, _ := c.lockRoom(code, true)
	defer room.mu.Unlock()

	info, err := c.store.RoomInfo(ctx, code)
	if err == nil && !info.Active {
		err = domain.ErrRoomClosed
	}
	if err != nil {
		c.releaseIfUnused(ctx, room)
		return err
	}

	if room.phase.InProgress() && !member {
		return c.requestAdmissionLocked(ctx, room, connID, name)
	}

	if err := c.ensureNameFreeLocked(ctx, room, name, connID); err != nil {
		c.releaseIfUnused(ctx, room)
		return err
	}
	player, err := c.resolvePlayer(ctx, code, name, connID)
	if err != nil {
		c.releaseIfUnused(ctx, room)
		return err
	}
	return c.admitLocked(ctx, room, connID, player)
}

func (c *Coordinator) requestAdmissionLocked(ctx context.Context, room *liveRoom, connID, name string) error {
	for id, pending := range room.pending {
		if pending.connID == connID {
			delete(room.pending, id)
		}
	}
	if err := c.ensureNameFreeLocked(ctx, room, name, connID); err != nil {
		return err
	}
	if room.host == "" {
		return domain.ErrHostUnavailable
	}

	request := joinRequest{
		id:          c.newID(),
		connID:      connID,
		name:        name,
		requestedAt: c.clock.Now(),
	}
	room.pending[request.id] = request

	c.notifier.Send(room.host, domain.EventJoinRequest, domain.JoinRequestNotice{
		RequestID:  request.id,
		PlayerName: name,
		RoomCode:   room.code,
	})
	c.notifier.Send(connID, domain.EventJoinPending, domain.Notice{Message: pendingMessage})
	c.log.Info("join request pending", "room", room.code, "conn", connID, "request", request.id)
	return nil
}

// RespondToJoin settles a pending join request. Only the room's host may
// answer, and a requester that already went away is ignored.
func (c *Coordinator) RespondToJoin(ctx context.Context, hostConn string, resp domain.JoinResponse) error {
	ref, ok := c.rooms.lookup(hostConn)
	if !ok || ref.role != roleHost {
		return domain.ErrNotHost
	}
	room, ok := c.lockRoom(ref.roomCode, false)
	if !ok {
		return domain.ErrRoomNotFound
	}
	defer room.mu.Unlock()

	if room.host != hostConn {
		return domain.ErrNotHost
	}
	request, ok := room.pending[resp.RequestID]
	if !ok {
		return domain.ErrJoinRequestNotFound
	}
	delete(room.pending, resp.RequestID)

	if !c.notifier.Connected(request.connID) {
		c.log.Debug("join request owner gone", "room", room.code, "request", request.id)
		return nil
	}
	if !resp.Approved {
		c.notifier.Send(request.connID, domain.EventJoinDenied, domain.Notice{Message: deniedMessage})
		return nil
	}

	// Names may have been taken while the request was pending.
	if err := c.ensureNameFreeLocked(ctx, room, request.name, request.connID); err != nil {
		if errors.Is(err, domain.ErrDuplicateName) {
			c.notifier.Send(request.connID, domain.EventJoinDenied, domain.Notice{Message: err.Error()})
			return nil
		}
		return err
	}
	player, err := c.resolvePlayer(ctx, room.code, request.name, request.connID)
	if err != nil {
		return err
	}

	c.notifier.Send(request.connID, domain.EventJoinApproved, domain.Notice{Message: approvedMessage})
	if err := c.admitLocked(ctx, room, request.connID, player); err != nil {
		return err
	}
	c.notifier.Send(request.connID, domain.EventQuizStarted, domain.QuizStarted{
		TotalQuestions: len(room.questions),
		LateJoiner:     true,
	})
	c.sendQuestionLocked(room, request.connID, true)

	standings, err := c.store.ListPlayers(ctx, room.code, false)
	if err != nil {
		return fmt.Errorf("list players %s: %w", room.code, err)
	}
	c.notifier.Send(request.connID, domain.EventLeaderboardUpdate, standings)
	return nil
}

// ensureNameFreeLocked rejects name when a connected player other than
// connID, or another pending request, already holds it.
func (c *Coordinator) ensureNameFreeLocked(ctx context.Context, room *liveRoom, name, connID string) error {
	for _, pending := range room.pending {
		if pending.connID != connID && pending.name == name {
			return domain.ErrDuplicateName
		}
	}
	players, err := c.store.ListPlayers(ctx, room.code, true)
	if err != nil {
		return fmt.Errorf("list players %s: %w", room.code, err)
	}
	for _, p := range players {
		if p.Name == name && p.ConnectionID != connID {
			return domain.ErrDuplicateName
		}
	}
	return nil
}

// resolvePlayer reuses the record owned by connID in this room, otherwise
// creates one or reactivates a disconnected player with the same name.
func (c *Coordinator) resolvePlayer(ctx context.Context, code, name, connID string) (domain.Player, error) {
	existing, err := c.store.PlayerByConnection(ctx, connID)
	switch {
	case err == nil && existing.RoomCode == code:
		return c.store.UpdatePlayerConnection(ctx, connID, code, name)
	case err != nil && !errors.Is(err, domain.ErrPlayerNotFound):
		return domain.Player{}, fmt.Errorf("player by connection: %w", err)
	}
	return c.store.GetOrCreatePlayer(ctx, code, name, connID)
}

// admitLocked adds the player's connection to the room and announces it.
func (c *Coordinator) admitLocked(ctx context.Context, room *liveRoom, connID string, player domain.Player) error {
	c.notifier.Join(room.code, connID)
	c.rooms.bind(connID, connRef{roomCode: room.code, role: rolePlayer, playerID: player.ID})
	c.notifier.Broadcast(room.code, domain.EventPlayerJoined, domain.PlayerJoined{Player: player})
	c.log.Info("player joined", "room", room.code, "conn", connID, "player", player.ID)
	return c.broadcastRosterLocked(ctx, room)
}

func (c *Coordinator) broadcastRosterLocked(ctx context.Context, room *liveRoom) error {
	players, err := c.store.ListPlayers(ctx, room.code, true)
	if err != nil {
		return fmt.Errorf("list players %s: %w", room.code, err)
	}
	c.notifier.Broadcast(room.code, domain.EventPlayersList, players)
	return nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}
