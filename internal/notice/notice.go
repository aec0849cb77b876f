// Package notice holds the non-blocking notifications a view shows its user
// when a collaborator call fails.
package notice

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	LevelError = "error"
	LevelInfo  = "info"

	systemTitle   = "Hệ thống"
	serverMessage = "Lỗi server"
)

type Notice struct {
	Level   string    `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ServerError is the generic notice for a failed fetch.
func ServerError(now time.Time) Notice {
	return Notice{Level: LevelError, Title: systemTitle, Message: serverMessage, At: now}
}

// StatusError is the notice the statistics widgets show, carrying the
// collaborator's status code when one is known.
func StatusError(err error, now time.Time) Notice {
	code := 0
	var se interface{ StatusCode() int }
	if errors.As(err, &se) {
		code = se.StatusCode()
	}
	return Notice{Level: LevelError, Title: systemTitle, Message: fmt.Sprintf("Lỗi! %d", code), At: now}
}

// Board keeps the most recent notices of a view, oldest first.
type Board struct {
	mu    sync.Mutex
	limit int
	items []Notice
}

func NewBoard(limit int) *Board {
	if limit <= 0 {
		limit = 20
	}
	return &Board{limit: limit}
}

func (b *Board) Push(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if len(b.items) > b.limit {
		b.items = b.items[len(b.items)-b.limit:]
	}
}

// Drain returns the pending notices and clears them.
func (b *Board) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}
