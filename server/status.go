package server

import (
	"sync"

	"github.com/maastricht-university/amusement-pipeline/session"
)

const (
	WaitingVideoID = "WAITING"
	UnknownVideoID = "UNKNOWN"

	statusPlaylistEnded = "playlist_ended"
)

// StatusUpdate is the body the player posts on every playback change.
type StatusUpdate struct {
	VideoID  *string `json:"video_id"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
	Status   string  `json:"status"`
}

// StatusBoard holds the latest playback status reported by the player. The
// sampling loop polls it once per frame.
type StatusBoard struct {
	mu sync.RWMutex
	st session.Status
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{st: session.Status{VideoID: WaitingVideoID}}
}

// Apply folds one player update into the board. Once the playlist has
// ended the board stays finished.
func (b *StatusBoard) Apply(u StatusUpdate) session.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := UnknownVideoID
	if u.VideoID != nil {
		id = *u.VideoID
	}
	b.st.VideoID = id
	b.st.Playing = u.Playing
	b.st.Position = u.Position
	if u.Status == statusPlaylistEnded {
		b.st.Finished = true
	}
	return b.st
}

func (b *StatusBoard) Status() session.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.st
}
