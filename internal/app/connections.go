package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"quizroom/internal/domain"
)

// Disconnect handles a dropped transport connection. A player keeps its
// record with the connection cleared and a host ends its room. A room left
// without connections loses its live state once any running quiz has ended.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) error {
	ref, bound := c.rooms.unbind(connID)
	touched := c.notifier.Remove(connID)

	var errs []error
	if bound {
		switch ref.role {
		case rolePlayer:
			errs = append(errs, c.dropPlayer(ctx, ref.roomCode, connID))
		case roleHost:
			errs = append(errs, c.hostGone(ctx, ref.roomCode, connID))
		}
		touched = append(touched, ref.roomCode)
	}

	for _, room := range c.rooms.all() {
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		for id, pending := range room.pending {
			if pending.connID == connID {
				delete(room.pending, id)
			}
		}
		if lo.Contains(touched, room.code) && c.notifier.Members(room.code) == 0 {
			errs = append(errs, c.vacateLocked(ctx, room))
		}
		room.mu.Unlock()
	}
	return errors.Join(errs...)
}

// PlayerLeave is an explicit leave: like a disconnect, but the transport
// stays open.
func (c *Coordinator) PlayerLeave(ctx context.Context, connID, code string) error {
	code = normalizeCode(code)
	ref, ok := c.rooms.lookup(connID)
	if !ok || ref.role != rolePlayer || ref.roomCode != code {
		return domain.ErrPlayerNotFound
	}
	c.rooms.unbind(connID)
	c.notifier.Leave(code, connID)
	if err := c.dropPlayer(ctx, code, connID); err != nil {
		return err
	}

	if room, ok := c.lockRoom(code, false); ok {
		defer room.mu.Unlock()
		if c.notifier.Members(code) == 0 {
			return c.vacateLocked(ctx, room)
		}
	}
	return nil
}

// vacateLocked releases a room left without connections. A running quiz is
// ended first; a room whose end is being retried is left to that retry. Must
// hold room.mu.
func (c *Coordinator) vacateLocked(ctx context.Context, room *liveRoom) error {
	switch {
	case room.ending:
		c.log.Info("room empty, end retry pending", "room", room.code)
		return nil
	case room.phase.InProgress():
		c.log.Info("room empty, ending quiz", "room", room.code)
		return c.endLocked(ctx, room)
	default:
		c.log.Info("room empty", "room", room.code)
		c.teardownLocked(ctx, room)
		return nil
	}
}

// HostLeave ends the room on the host's request.
func (c *Coordinator) HostLeave(ctx context.Context, connID, code string) error {
	code = normalizeCode(code)
	room, ok := c.lockRoom(code, false)
	if !ok {
		return domain.ErrRoomNotFound
	}
	defer room.mu.Unlock()
	if room.host != connID {
		return domain.ErrNotHost
	}
	c.log.Info("host left", "room", code, "conn", connID)
	return c.endLocked(ctx, room)
}

func (c *Coordinator) dropPlayer(ctx context.Context, code, connID string) error {
	room, live := c.lockRoom(code, false)
	if live {
		defer room.mu.Unlock()
	}

	player, err := c.store.ClearPlayerConnection(ctx, connID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear player connection: %w", err)
	}
	c.log.Info("player left", "room", code, "conn", connID, "player", player.ID)
	if !live {
		return nil
	}

	c.notifier.Broadcast(code, domain.EventPlayerLeft, domain.PlayerLeft{ConnectionID: connID})
	return c.broadcastRosterLocked(ctx, room)
}

func (c *Coordinator) hostGone(ctx context.Context, code, connID string) error {
	room, ok := c.lockRoom(code, false)
	if !ok {
		return nil
	}
	defer room.mu.Unlock()
	if room.host != connID {
		return nil
	}
	c.log.Info("host disconnected", "room", code, "conn", connID)
	return c.endLocked(ctx, room)
}
