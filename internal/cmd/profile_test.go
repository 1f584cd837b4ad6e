package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memberhub/memberdash/internal/core/domain"
)

type scriptedSessions struct {
	mu    sync.Mutex
	snaps []domain.SessionSnapshot
}

func (s *scriptedSessions) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snaps[0]
	if len(s.snaps) > 1 {
		s.snaps = s.snaps[1:]
	}
	return snap
}

func TestWaitForState(t *testing.T) {
	before := domain.SessionSnapshot{State: domain.StateUnauthenticated, Version: 1}
	loading := domain.SessionSnapshot{State: domain.StateUnauthenticated, Loading: true, Version: 1}
	authed := domain.SessionSnapshot{State: domain.StateAuthenticated, Version: 2}
	signedOut := domain.SessionSnapshot{State: domain.StateUnauthenticated, Version: 3}

	cases := []struct {
		name    string
		snaps   []domain.SessionSnapshot
		wantErr error
	}{
		{"settles authenticated", []domain.SessionSnapshot{before, loading, authed}, nil},
		{"settles signed out", []domain.SessionSnapshot{before, loading, signedOut}, domain.ErrNoSession},
		{"event not yet applied", []domain.SessionSnapshot{before}, context.DeadlineExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := waitForState(context.Background(), &scriptedSessions{snaps: tc.snaps}, domain.StateAuthenticated, 1, 300*time.Millisecond)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
