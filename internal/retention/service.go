// Package retention bounds the artifacts and session logs a long-running
// process accumulates.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage"
)

type SessionEvictor interface {
	EvictIdle(cutoff time.Time) int
}

type Config struct {
	Interval time.Duration
	// MaxFiles keeps at most this many artifacts per store. Zero disables it.
	MaxFiles int
	// MaxAge removes artifacts older than this. Zero disables it.
	MaxAge time.Duration
	// SessionIdleTTL evicts sessions idle for longer. Zero disables it.
	SessionIdleTTL time.Duration
}

const DefaultInterval = 5 * time.Minute

// Service is configured before Run or RunOnce is first called and read-only
// afterwards. Sweeps are serialized.
type Service struct {
	Stores   []storage.ObjectStore
	Sessions SessionEvictor
	Config   Config
	Logger   *slog.Logger
	Clock    func() time.Time

	sweepMu sync.Mutex
}

type Summary struct {
	StoresScanned   int   `json:"stores_scanned"`
	FilesScanned    int   `json:"files_scanned"`
	ExpiredDeleted  int   `json:"expired_deleted"`
	OverflowDeleted int   `json:"overflow_deleted"`
	BytesFreed      int64 `json:"bytes_freed"`
	SessionsEvicted int   `json:"sessions_evicted"`
	Failures        int   `json:"failures"`
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "retention sweep failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "retention sweep completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunOnce sweeps every store once and evicts idle sessions. Failures on one
// file do not stop the sweep; they are counted and reported together.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	now := s.now()
	summary := Summary{}
	failures := make([]string, 0)

	for i, store := range s.Stores {
		if store == nil {
			continue
		}
		summary.StoresScanned++
		objects, err := store.List(ctx, storage.ArtifactPrefix)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("store %d list: %v", i, err))
			continue
		}

		kept := make([]storage.ObjectInfo, 0, len(objects))
		for _, object := range objects {
			if !storage.IsArtifactName(object.Key) {
				continue
			}
			summary.FilesScanned++
			if s.Config.MaxAge > 0 && now.Sub(object.LastModified) > s.Config.MaxAge {
				if err := store.Delete(ctx, object.Key); err != nil {
					summary.Failures++
					failures = append(failures, fmt.Sprintf("store %d delete %s: %v", i, object.Key, err))
					kept = append(kept, object)
					continue
				}
				summary.ExpiredDeleted++
				summary.BytesFreed += object.Size
				continue
			}
			kept = append(kept, object)
		}

		// List is oldest first, so the overflow is the head of kept.
		if s.Config.MaxFiles > 0 && len(kept) > s.Config.MaxFiles {
			for _, object := range kept[:len(kept)-s.Config.MaxFiles] {
				if err := store.Delete(ctx, object.Key); err != nil {
					summary.Failures++
					failures = append(failures, fmt.Sprintf("store %d delete %s: %v", i, object.Key, err))
					continue
				}
				summary.OverflowDeleted++
				summary.BytesFreed += object.Size
			}
		}
	}

	if s.Sessions != nil && s.Config.SessionIdleTTL > 0 {
		summary.SessionsEvicted = s.Sessions.EvictIdle(now.Add(-s.Config.SessionIdleTTL))
	}

	observeSweep(summary, len(failures) == 0)
	if len(failures) > 0 {
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	return summary, nil
}

func (s *Service) interval() time.Duration {
	if s.Config.Interval <= 0 {
		return DefaultInterval
	}
	return s.Config.Interval
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}
