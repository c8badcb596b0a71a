package usagelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/ports"
)

// document is the on-disk layout of the usage log.
type document struct {
	Users         map[string]domain.UserRecord `json:"users"`
	TotalUsers    int                          `json:"totalUsers"`
	TotalRequests int                          `json:"totalRequests"`
	CreatedAt     time.Time                    `json:"createdAt"`
	Broadcasts    []domain.BroadcastRecord     `json:"broadcasts,omitempty"`
}

// FileStore keeps the usage log as a single JSON document. Every mutation
// rewrites the file through a temp file and rename.
type FileStore struct {
	mu     sync.Mutex
	path   string
	doc    document
	clock  func() time.Time
	logger *slog.Logger
}

var _ ports.UsageLog = (*FileStore)(nil)

// OpenFile loads the document at path, creating it when missing. A corrupt
// document is logged and replaced by an empty one on the next write.
func OpenFile(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: path, clock: time.Now, logger: logger}

	doc, err := readDocument(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = emptyDocument(s.clock())
		if err := s.flush(); err != nil {
			return nil, err
		}
	case err != nil:
		logger.Error("usage log unreadable, starting empty", "path", path, "error", err)
		s.doc = emptyDocument(s.clock())
	default:
		s.doc = doc
	}
	return s, nil
}

func emptyDocument(now time.Time) document {
	return document{Users: map[string]domain.UserRecord{}, CreatedAt: now.UTC()}
}

func readDocument(path string) (document, error) {
	f, err := os.Open(path)
	if err != nil {
		return document{}, err
	}
	defer f.Close()

	var doc document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc.Users == nil {
		doc.Users = map[string]domain.UserRecord{}
	}
	return doc, nil
}

// RecordStart creates or refreshes the caller's record.
func (s *FileStore) RecordStart(_ context.Context, caller domain.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(caller.ID)
	rec, existed := s.doc.Users[key]
	applyStart(&rec, existed, caller, s.clock())
	s.doc.Users[key] = rec
	if !existed {
		s.doc.TotalUsers++
	}
	return s.flush()
}

// RecordRequest counts a portfolio request.
func (s *FileStore) RecordRequest(_ context.Context, caller domain.Caller, portfolioURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(caller.ID)
	if rec, ok := s.doc.Users[key]; ok {
		applyRequest(&rec, portfolioURL, s.clock())
		s.doc.Users[key] = rec
	}
	s.doc.TotalRequests++
	return s.flush()
}

// RecordSuccess counts a delivered set of images.
func (s *FileStore) RecordSuccess(_ context.Context, caller domain.Caller, images int, summary domain.Summary) error {
	return s.update(caller.ID, func(rec *domain.UserRecord, now time.Time) {
		applySuccess(rec, images, summary, now)
	})
}

// RecordFailure counts a failed request with its usage-log label.
func (s *FileStore) RecordFailure(_ context.Context, caller domain.Caller, kind string) error {
	return s.update(caller.ID, func(rec *domain.UserRecord, now time.Time) {
		applyFailure(rec, kind, now)
	})
}

// RecordBroadcast appends a broadcast, keeping the most recent ones.
func (s *FileStore) RecordBroadcast(_ context.Context, rec domain.BroadcastRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Broadcasts = append(s.doc.Broadcasts, rec)
	if n := len(s.doc.Broadcasts); n > maxBroadcasts {
		s.doc.Broadcasts = append([]domain.BroadcastRecord(nil), s.doc.Broadcasts[n-maxBroadcasts:]...)
	}
	return s.flush()
}

// Stats aggregates all records.
func (s *FileStore) Stats(_ context.Context, now time.Time) (domain.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.snapshot(), s.doc.TotalUsers, s.doc.TotalRequests, now), nil
}

// TopUsers returns users ordered by portfolio requests.
func (s *FileStore) TopUsers(_ context.Context, limit int) ([]domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topUsers(s.snapshot(), limit), nil
}

// Users returns the users passing filter.
func (s *FileStore) Users(_ context.Context, filter domain.UserFilter, now time.Time) ([]domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterUsers(s.snapshot(), filter, now), nil
}

// Broadcasts returns the retained broadcast history, oldest first.
func (s *FileStore) Broadcasts(_ context.Context) ([]domain.BroadcastRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BroadcastRecord(nil), s.doc.Broadcasts...), nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) update(id int64, apply func(*domain.UserRecord, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(id)
	rec, ok := s.doc.Users[key]
	if !ok {
		return nil
	}
	apply(&rec, s.clock())
	s.doc.Users[key] = rec
	return s.flush()
}

func (s *FileStore) snapshot() []domain.UserRecord {
	users := make([]domain.UserRecord, 0, len(s.doc.Users))
	for _, u := range s.doc.Users {
		users = append(users, u)
	}
	return users
}

func (s *FileStore) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create usage dir: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp usage file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode usage log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync usage log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close usage log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace usage log: %w", err)
	}
	return nil
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
