// Package history tracks prior boost decisions across cycles: which statuses
// were already boosted, when each author was last boosted, and how many
// boosts were issued in the current hour and calendar day.
//
// The in-memory state is authoritative during a cycle and flushed to SQLite
// after it. A missing or unreadable snapshot degrades to an empty in-memory
// store with a warning; it never aborts the process.
package history

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	dayKeyFormat  = "2006-01-02"
	hourKeyFormat = "2006-01-02T15"

	// authorWindow is the rolling window for author diversity. Entries older
	// than this are pruned on save.
	authorWindow = 24 * time.Hour
)

// Store is the process-wide boost history. The scheduler guarantees a
// single boost cycle in flight; the mutex only covers concurrent reads from
// the status server.
type Store struct {
	mu        sync.Mutex
	seen      *lru.Cache[string, struct{}]
	authors   map[string]time.Time
	dayKey    string
	dayCount  int
	hourKey   string
	hourCount int

	db  *sqlx.DB // nil means memory-only
	log *logrus.Logger
}

// Open loads the history snapshot at path. Any persistence failure is logged
// as a warning and yields a memory-only store, since running without history
// only weakens duplicate and diversity guarantees, it does not break boosting.
func Open(path string, seenCapacity int, log *logrus.Logger) *Store {
	s := newMemory(seenCapacity, log)

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		log.WithError(err).Warn("history: cannot open state database, running memory-only")
		return s
	}
	if _, err := db.Exec(schema); err != nil {
		log.WithError(err).Warn("history: cannot migrate state database, running memory-only")
		db.Close()
		return s
	}
	s.db = db

	if err := s.load(); err != nil {
		log.WithError(err).Warn("history: cannot load state, starting empty")
	}
	return s
}

// NewMemory creates an empty, non-persisted store. Used in tests and as the
// degraded mode when the state database is unavailable.
func NewMemory(seenCapacity int, log *logrus.Logger) *Store {
	return newMemory(seenCapacity, log)
}

func newMemory(seenCapacity int, log *logrus.Logger) *Store {
	if seenCapacity <= 0 {
		seenCapacity = 6000
	}
	if log == nil {
		log = logrus.New()
	}
	// The cache is used write-only (Contains never promotes), so eviction
	// order is insertion order: the oldest remembered status drops first.
	seen, _ := lru.New[string, struct{}](seenCapacity)
	return &Store{
		seen:    seen,
		authors: make(map[string]time.Time),
		log:     log,
	}
}

// IsSeen reports whether the canonical URL was boosted before.
func (s *Store) IsSeen(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return url != "" && s.seen.Contains(url)
}

// MarkSeen remembers a boosted status, evicting the oldest entry at capacity.
func (s *Store) MarkSeen(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen.Add(url, struct{}{})
}

// SeenCount returns the number of remembered statuses.
func (s *Store) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.Len()
}

// LastBoost returns the time the author was last successfully boosted.
func (s *Store) LastBoost(acct string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.authors[acct]
	return t, ok
}

// RecordBoost records a successful boost of the author at the given time.
func (s *Store) RecordBoost(acct string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[acct] = now.UTC()
}

// DayCount returns boosts issued in the current calendar day (UTC), rolling
// the window over first if the day changed.
func (s *Store) DayCount(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(now)
	return s.dayCount
}

// HourCount returns boosts issued in the current hour, rolling the window
// over first if the hour changed.
func (s *Store) HourCount(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(now)
	return s.hourCount
}

// CountBoost increments both window counters for one issued boost.
func (s *Store) CountBoost(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(now)
	s.dayCount++
	s.hourCount++
}

func (s *Store) rollover(now time.Time) {
	day := now.UTC().Format(dayKeyFormat)
	hour := now.UTC().Format(hourKeyFormat)
	if s.dayKey != day {
		s.dayKey = day
		s.dayCount = 0
	}
	if s.hourKey != hour {
		s.hourKey = hour
		s.hourCount = 0
	}
}

func (s *Store) load() error {
	rows, err := s.db.Query("SELECT url FROM seen_statuses ORDER BY seq")
	if err != nil {
		return fmt.Errorf("load seen statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return fmt.Errorf("scan seen status: %w", err)
		}
		s.seen.Add(url, struct{}{})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load seen statuses: %w", err)
	}

	authorRows, err := s.db.Query("SELECT acct, boosted_at FROM author_boosts")
	if err != nil {
		return fmt.Errorf("load author boosts: %w", err)
	}
	defer authorRows.Close()
	for authorRows.Next() {
		var acct string
		var at int64
		if err := authorRows.Scan(&acct, &at); err != nil {
			return fmt.Errorf("scan author boost: %w", err)
		}
		s.authors[acct] = time.Unix(at, 0).UTC()
	}
	if err := authorRows.Err(); err != nil {
		return fmt.Errorf("load author boosts: %w", err)
	}

	var counters struct {
		Day       string `db:"day"`
		DayCount  int    `db:"day_count"`
		Hour      string `db:"hour"`
		HourCount int    `db:"hour_count"`
	}
	err = s.db.Get(&counters, "SELECT day, day_count, hour, hour_count FROM boost_counters WHERE id = 1")
	if err == nil {
		s.dayKey = counters.Day
		s.dayCount = counters.DayCount
		s.hourKey = counters.Hour
		s.hourCount = counters.HourCount
	}
	return nil
}

// Save flushes the in-memory state to SQLite. On a memory-only store it is a
// no-op. After a completed cycle the snapshot is always consistent with the
// in-memory state.
func (s *Store) Save() error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM seen_statuses"); err != nil {
		return fmt.Errorf("clear seen statuses: %w", err)
	}
	for i, url := range s.seen.Keys() { // oldest first
		if _, err := tx.Exec("INSERT INTO seen_statuses (url, seq) VALUES (?, ?)", url, i); err != nil {
			return fmt.Errorf("save seen status %s: %w", url, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM author_boosts"); err != nil {
		return fmt.Errorf("clear author boosts: %w", err)
	}
	cutoff := time.Now().UTC().Add(-authorWindow)
	for acct, at := range s.authors {
		if at.Before(cutoff) {
			delete(s.authors, acct)
			continue
		}
		if _, err := tx.Exec("INSERT INTO author_boosts (acct, boosted_at) VALUES (?, ?)", acct, at.Unix()); err != nil {
			return fmt.Errorf("save author boost %s: %w", acct, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO boost_counters (id, day, day_count, hour, hour_count)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			day = excluded.day,
			day_count = excluded.day_count,
			hour = excluded.hour,
			hour_count = excluded.hour_count
	`, s.dayKey, s.dayCount, s.hourKey, s.hourCount)
	if err != nil {
		return fmt.Errorf("save boost counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history save: %w", err)
	}
	return nil
}

// Close closes the backing database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
