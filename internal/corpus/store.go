package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/internal/persistence"
	"github.com/gcbaptista/patient-search/model"
)

// SnapshotFile is the name of the persisted snapshot inside the data directory.
const SnapshotFile = "corpus.gob"

// DefaultProviderTimeout bounds one provider call when no timeout is configured.
const DefaultProviderTimeout = 5 * time.Second

// Snapshot is an immutable view of the corpus. Callers must not modify Patients.
type Snapshot struct {
	Patients []model.Patient
	Version  uint64
	Source   string
	LoadedAt time.Time
}

// Store holds the current snapshot and swaps it atomically on refresh.
// Readers never block; refreshes are serialised.
type Store struct {
	provider Provider
	current  atomic.Pointer[Snapshot]

	mu      sync.Mutex // serialises Load and Refresh
	timeout time.Duration
	dataDir string
	onSwap  func(*Snapshot)
	logger  *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDataDir enables snapshot persistence in dir.
func WithDataDir(dir string) StoreOption {
	return func(s *Store) { s.dataDir = dir }
}

// WithOnSwap registers a callback invoked after every snapshot swap.
func WithOnSwap(fn func(*Snapshot)) StoreOption {
	return func(s *Store) { s.onSwap = fn }
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store backed by provider.
func NewStore(provider Provider, opts ...StoreOption) *Store {
	s := &Store{
		provider: provider,
		timeout:  DefaultProviderTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("corpus")
	return s
}

// Current returns the snapshot in service, or nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// ProviderName returns the name of the backing provider.
func (s *Store) ProviderName() string {
	return s.provider.Name()
}

// Load returns the current snapshot, loading it on first use.
// A persisted snapshot is restored before the provider is consulted.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}

	if snap, ok := s.restore(); ok {
		s.swap(snap)
		return snap, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh fetches a fresh corpus from the provider and swaps it in.
// On failure the previous snapshot stays in service.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Store) refreshLocked(ctx context.Context) (*Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	patients, err := s.provider.Patients(fetchCtx)
	if err != nil {
		s.logger.Error("corpus refresh failed", zap.String("source", s.provider.Name()), zap.Error(err))
		return nil, searchErrors.NewCorpusUnavailableError(s.provider.Name(), err)
	}
	if patients == nil {
		patients = []model.Patient{}
	}

	var version uint64 = 1
	if prev := s.current.Load(); prev != nil {
		version = prev.Version + 1
	}
	snap := &Snapshot{
		Patients: patients,
		Version:  version,
		Source:   s.provider.Name(),
		LoadedAt: time.Now().UTC(),
	}
	s.swap(snap)
	s.persist(snap)

	s.logger.Info("corpus refreshed",
		zap.String("source", snap.Source),
		zap.Int("patients", len(snap.Patients)),
		zap.Uint64("version", snap.Version),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}

func (s *Store) swap(snap *Snapshot) {
	s.current.Store(snap)
	if s.onSwap != nil {
		s.onSwap(snap)
	}
}

func (s *Store) snapshotPath() string {
	if s.dataDir == "" {
		return ""
	}
	return filepath.Join(s.dataDir, SnapshotFile)
}

func (s *Store) persist(snap *Snapshot) {
	path := s.snapshotPath()
	if path == "" {
		return
	}
	if err := persistence.SaveGob(path, snap); err != nil {
		s.logger.Warn("failed to persist corpus snapshot", zap.String("path", path), zap.Error(err))
	}
}

func (s *Store) restore() (*Snapshot, bool) {
	path := s.snapshotPath()
	if path == "" {
		return nil, false
	}
	var snap Snapshot
	if err := persistence.LoadGob(path, &snap); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("ignoring unreadable corpus snapshot", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	if snap.Patients == nil {
		snap.Patients = []model.Patient{}
	}
	s.logger.Info("corpus restored from snapshot",
		zap.String("path", path),
		zap.String("source", snap.Source),
		zap.Int("patients", len(snap.Patients)),
		zap.Uint64("version", snap.Version))
	return &snap, true
}
