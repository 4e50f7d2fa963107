// Package ratelimit throttles mutating operations per actor and action.
// Counters live in a bbolt file outside the relational store: one bucket
// per action, one fixed window per actor. The check is a precondition:
// callers abort before any store mutation on a throttled decision.
package ratelimit

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Action names a throttled operation class.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Decision is the limiter's verdict for one attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter counts operations per (actor, action) in fixed windows.
type Limiter struct {
	db     *bolt.DB
	quota  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or reopens the limiter database at path, allowing quota
// operations per window for each actor and action.
func Open(path string, quota int, window time.Duration, logger *slog.Logger) (*Limiter, error) {
	if quota <= 0 {
		return nil, fmt.Errorf("quota must be positive, got %d", quota)
	}
	if window <= 0 {
		window = time.Minute
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open limiter db: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{db: db, quota: quota, window: window, logger: logger, now: time.Now}, nil
}

// Check consumes one unit of actor's quota for action. Anonymous actors
// must be keyed by a caller-supplied proxy identity such as the client
// address. Backend failures are treated as Allowed: the limiter fails
// open, a documented risk accepted over refusing all writes during a
// limiter outage.
func (l *Limiter) Check(actor string, action Action) Decision {
	if actor == "" {
		actor = "anonymous"
	}
	var d Decision
	err := l.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(action))
		if err != nil {
			return err
		}
		now := l.now()
		start, count := decodeWindow(b.Get([]byte(actor)))
		if now.Sub(start) >= l.window {
			start, count = now, 0
		}
		if count >= uint64(l.quota) {
			d = Decision{RetryAfter: start.Add(l.window).Sub(now)}
			return nil
		}
		d = Decision{Allowed: true}
		return b.Put([]byte(actor), encodeWindow(start, count+1))
	})
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing", "action", string(action), "error", err)
		return Decision{Allowed: true}
	}
	return d
}

// Close closes the limiter database.
func (l *Limiter) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func encodeWindow(start time.Time, count uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(start.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], count)
	return buf
}

func decodeWindow(raw []byte) (time.Time, uint64) {
	if len(raw) != 16 {
		return time.Time{}, 0
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8]))), binary.BigEndian.Uint64(raw[8:])
}
