// Package room tracks which connections are members of which secret-key room
// and when empty rooms may be reclaimed.
//
// A room moves absent -> active on first join, active -> pending eviction when
// its last member leaves, and pending -> absent once the grace period passes
// without a new join. A join during the grace period makes it active again.
//
// A Registry is not safe for concurrent use; the session coordinator
// serializes every call under its lock.
package room

import (
	"time"

	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/scheduler"
)

// DefaultGracePeriod is how long an empty room is kept before it is deleted.
const DefaultGracePeriod = 60 * time.Second

// Room is one secret-key room.
type Room struct {
	Key       string
	Members   []domain.Member
	CreatedAt time.Time

	// emptySince is zero while the room has members.
	emptySince time.Time
}

// JoinResult describes the outcome of a join.
type JoinResult struct {
	// Reconnect is true when a member with the same username was replaced.
	Reconnect bool
	// Displaced is the connection id of the replaced member, if any.
	Displaced string
	// Created is true when the room did not exist before this join.
	Created bool
	Members []domain.MemberView
}

// LeaveResult describes the outcome of a leave.
type LeaveResult struct {
	RoomKey  string
	Username string
	Members  []domain.MemberView
	// Empty is true when the room has no members left and is pending eviction.
	Empty bool
}

// Registry holds the membership lists of all rooms.
type Registry struct {
	rooms  map[string]*Room
	byConn map[string]string // connection id -> room key
	tasks  *scheduler.Queue
	grace  time.Duration
}

// NewRegistry returns an empty registry that schedules eviction checks on
// tasks. A grace period of zero or less falls back to DefaultGracePeriod.
func NewRegistry(tasks *scheduler.Queue, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if tasks == nil {
		tasks = scheduler.NewQueue()
	}
	return &Registry{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]string),
		tasks:  tasks,
		grace:  grace,
	}
}

// GracePeriod returns the configured grace period.
func (r *Registry) GracePeriod() time.Duration { return r.grace }

// Join adds connID to roomKey under username. An existing member with the
// same username is removed first and reported as displaced; its connection
// is left untouched.
func (r *Registry) Join(roomKey, username, connID string, now time.Time) JoinResult {
	var res JoinResult

	rm, ok := r.rooms[roomKey]
	if !ok {
		rm = &Room{Key: roomKey, CreatedAt: now}
		r.rooms[roomKey] = rm
		res.Created = true
	}

	for i, m := range rm.Members {
		if m.Username == username {
			res.Reconnect = true
			res.Displaced = m.ConnectionID
			rm.Members = append(rm.Members[:i], rm.Members[i+1:]...)
			delete(r.byConn, m.ConnectionID)
			break
		}
	}

	rm.Members = append(rm.Members, domain.Member{
		Username:     username,
		ConnectionID: connID,
		Status:       domain.MemberStatusOnline,
		JoinedAt:     now,
	})
	rm.emptySince = time.Time{}
	r.byConn[connID] = roomKey

	res.Members = views(rm.Members)
	return res
}

// Leave removes the membership record of connID. It matches on connection id,
// never username, so another connection using the same name is unaffected.
// domain.ErrNotJoined is returned when connID holds no membership.
func (r *Registry) Leave(connID string, now time.Time) (LeaveResult, error) {
	roomKey, ok := r.byConn[connID]
	if !ok {
		return LeaveResult{}, domain.ErrNotJoined
	}
	delete(r.byConn, connID)

	rm, ok := r.rooms[roomKey]
	if !ok {
		return LeaveResult{}, domain.ErrNotJoined
	}

	res := LeaveResult{RoomKey: roomKey}
	for i, m := range rm.Members {
		if m.ConnectionID == connID {
			res.Username = m.Username
			rm.Members = append(rm.Members[:i], rm.Members[i+1:]...)
			break
		}
	}
	res.Members = views(rm.Members)

	if len(rm.Members) == 0 {
		res.Empty = true
		rm.emptySince = now
		r.tasks.Schedule(scheduler.KindRoomEviction, roomKey, now.Add(r.grace))
	}
	return res, nil
}

// Members returns the client-facing member list of roomKey, or an empty list.
func (r *Registry) Members(roomKey string) []domain.MemberView {
	rm, ok := r.rooms[roomKey]
	if !ok {
		return []domain.MemberView{}
	}
	return views(rm.Members)
}

// RoomOf returns the room key connID is a member of.
func (r *Registry) RoomOf(connID string) (string, bool) {
	key, ok := r.byConn[connID]
	return key, ok
}

// Recipients returns the connection ids of roomKey's members in join order,
// leaving out except (pass "" to include everyone).
func (r *Registry) Recipients(roomKey, except string) []string {
	rm, ok := r.rooms[roomKey]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rm.Members))
	for _, m := range rm.Members {
		if m.ConnectionID != except {
			out = append(out, m.ConnectionID)
		}
	}
	return out
}

// Exists reports whether roomKey is in the registry, including while pending.
func (r *Registry) Exists(roomKey string) bool {
	_, ok := r.rooms[roomKey]
	return ok
}

// Pending reports whether roomKey is empty and waiting for eviction.
func (r *Registry) Pending(roomKey string) bool {
	rm, ok := r.rooms[roomKey]
	return ok && len(rm.Members) == 0
}

// Count returns the number of rooms, including pending ones.
func (r *Registry) Count() int { return len(r.rooms) }

// EvictIfEmpty deletes roomKey if, at now, it still exists, is still empty,
// and has been empty for at least the grace period. A room that was rejoined
// and emptied again waits for its newer eviction task.
func (r *Registry) EvictIfEmpty(roomKey string, now time.Time) bool {
	rm, ok := r.rooms[roomKey]
	if !ok || len(rm.Members) > 0 || rm.emptySince.IsZero() {
		return false
	}
	if now.Sub(rm.emptySince) < r.grace {
		return false
	}
	delete(r.rooms, roomKey)
	return true
}

// RunDue runs every eviction check due by now and returns the keys of the
// rooms that were deleted.
func (r *Registry) RunDue(now time.Time) []string {
	var evicted []string
	for _, task := range r.tasks.Due(now) {
		if task.Kind != scheduler.KindRoomEviction {
			continue
		}
		if r.EvictIfEmpty(task.Key, now) {
			evicted = append(evicted, task.Key)
		}
	}
	return evicted
}

func views(members []domain.Member) []domain.MemberView {
	out := make([]domain.MemberView, len(members))
	for i, m := range members {
		out[i] = m.View()
	}
	return out
}
