package state

import (
	"sync"

	"golang.org/x/exp/maps"
)

// ExtraRoomInfo is the per-room projection recomputed on every room-list
// batch. Empty strings and a nil IsDM mean "unknown".
type ExtraRoomInfo struct {
	RawName     string `json:"raw_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsDM        *bool  `json:"is_dm,omitempty"`
}

// IsDirect reports whether the room is known to be a direct chat.
func (i ExtraRoomInfo) IsDirect() bool {
	return i.IsDM != nil && *i.IsDM
}

// RoomInfoStore maps room identifiers to their latest projection. Entries are
// overwritten, never merged, and never pruned.
type RoomInfoStore interface {
	Update(roomID string, info ExtraRoomInfo)
	Get(roomID string) (ExtraRoomInfo, bool)
	Snapshot() map[string]ExtraRoomInfo
	Len() int
}

type roomInfoStore struct {
	mu    sync.Mutex
	infos map[string]ExtraRoomInfo
}

func NewRoomInfoStore() RoomInfoStore {
	return &roomInfoStore{infos: make(map[string]ExtraRoomInfo)}
}

func (s *roomInfoStore) Update(roomID string, info ExtraRoomInfo) {
	info = cloneRoomInfo(info)
	s.mu.Lock()
	s.infos[roomID] = info
	s.mu.Unlock()
}

func (s *roomInfoStore) Get(roomID string) (ExtraRoomInfo, bool) {
	s.mu.Lock()
	info, ok := s.infos[roomID]
	s.mu.Unlock()
	return cloneRoomInfo(info), ok
}

func (s *roomInfoStore) Snapshot() map[string]ExtraRoomInfo {
	s.mu.Lock()
	snap := maps.Clone(s.infos)
	s.mu.Unlock()
	for id, info := range snap {
		snap[id] = cloneRoomInfo(info)
	}
	return snap
}

func (s *roomInfoStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.infos)
}

func cloneRoomInfo(info ExtraRoomInfo) ExtraRoomInfo {
	if info.IsDM != nil {
		v := *info.IsDM
		info.IsDM = &v
	}
	return info
}
