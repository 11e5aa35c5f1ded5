package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Sessions keeps in memory sessions
type Sessions struct {
	data *Data
	ttl  time.Duration
	now  func() time.Time

	lock     *sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates session keeper, sessions idle longer than ttl are dropped by the clean loop
func NewSessions(data *Data, ttl time.Duration) (*Sessions, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, errors.Errorf("wrong session ttl %v", ttl)
	}
	return &Sessions{data: data, ttl: ttl, now: time.Now, lock: &sync.Mutex{}, sessions: map[string]*Session{}}, nil
}

func validate(data *Data) error {
	if data == nil {
		return errors.New("no data")
	}
	if data.Service == nil {
		return errors.New("no service")
	}
	if data.Builder == nil {
		return errors.New("no summary builder")
	}
	return nil
}

// Get returns existing session by ID
func (ss *Sessions) Get(id string) (*Session, bool) {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	res, ok := ss.sessions[id]
	return res, ok
}

// GetOrNew returns existing session or creates a new one, the flag indicates a new session
func (ss *Sessions) GetOrNew(id string) (*Session, bool) {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if res, ok := ss.sessions[id]; ok && id != "" {
		return res, false
	}
	res := newSession(uuid.New().String(), ss.data, ss.now)
	ss.sessions[res.id] = res
	goapp.Log.Info().Str("session", res.id).Int("active", len(ss.sessions)).Msg("new session")
	return res, true
}

// Count returns number of active sessions
func (ss *Sessions) Count() int {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return len(ss.sessions)
}

// StartCleanLoop drops idle sessions every interval until ctx is done
func (ss *Sessions) StartCleanLoop(ctx context.Context, interval time.Duration) <-chan struct{} {
	goapp.Log.Info().Msgf("Starting session clean every %v, ttl %v", interval, ss.ttl)
	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := ss.clean(); n > 0 {
					goapp.Log.Info().Int("dropped", n).Int("active", ss.Count()).Msg("sessions cleaned")
				}
			case <-ctx.Done():
				goapp.Log.Info().Msg("Stopped session clean loop")
				return
			}
		}
	}()
	return res
}

func (ss *Sessions) clean() int {
	now := ss.now()
	ss.lock.Lock()
	defer ss.lock.Unlock()
	res := 0
	for id, s := range ss.sessions {
		if s.idle(now, ss.ttl) {
			delete(ss.sessions, id)
			res++
		}
	}
	return res
}
