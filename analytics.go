package main

import (
	"log/slog"
	"sync"
	"time"
)

// Journal event types
const (
	EvtConnect    = "connect"
	EvtDisconnect = "disconnect"
	EvtRegister   = "register"
	EvtKill       = "kill"
	EvtBan        = "ban"
	EvtDuplicate  = "duplicate_session"
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	Subject   string // display name or address, depending on type
	Object    string // victim name, banned address, etc.
	Timestamp time.Time
}

// Analytics persists the event journal with batched background writes
// that never block the game loop. A nil *Analytics is valid and drops
// everything.
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	// Producers (projectile ticks, connection teardown) outlive the
	// HTTP server, so the events channel is never closed; Track checks
	// the stopped flag instead.
	mu      sync.Mutex
	stopped bool
}

// NewAnalytics creates and starts the journal's background writer.
// Returns nil when no database is configured.
func NewAnalytics(db *DB) *Analytics {
	if db == nil {
		return nil
	}
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking).
// Events arriving after Stop are silently dropped.
func (a *Analytics) Track(evtType, subject, object string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		Subject:   subject,
		Object:    object,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full — drop event rather than blocking the game
	}
}

// Stop gracefully shuts down the writer, flushing what remains.
// Safe to call more than once.
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()
	close(a.stop)
	a.wg.Wait()
}

// writer batches and writes events to the database
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= 50 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is already queued, then flush and exit
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					if len(batch) > 0 {
						a.flush(batch)
					}
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	tx, err := a.db.conn.Begin()
	if err != nil {
		slog.Error("journal: begin tx", "err", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (event_type, subject, object, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		slog.Error("journal: prepare", "err", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		if _, err := stmt.Exec(evt.Type, evt.Subject, evt.Object, evt.Timestamp.Format(time.RFC3339)); err != nil {
			slog.Error("journal: insert", "err", err)
		}
	}
	tx.Commit()
}
