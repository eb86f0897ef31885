package game

import (
	"context"
	"time"
)

// Start moves an open session to started. Only the creator may start,
// and a second start fails rather than resetting the clock.
func (s *Service) Start(ctx context.Context, sessionID, playerID string) (*Session, error) {
	var started *Session
	err := s.mutateSession(ctx, sessionID, func(sess *Session) ([]Transaction, error) {
		if sess.CreatorID != playerID {
			return nil, ErrForbidden
		}
		switch sess.State {
		case StateStarted:
			return nil, ErrAlreadyStarted
		case StateEnded:
			return nil, ErrSessionNotActive
		}
		now := s.now().UTC()
		sess.State = StateStarted
		sess.StartedAt = &now
		started = sess
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("session started", "session_id", sessionID, "duration_seconds", started.DurationSeconds)

	// The feed notification is best effort; a failure never unwinds
	// the state transition.
	if s.market != nil {
		go func(durationSeconds int64) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.market.StartFeed(ctx, sessionID, durationSeconds); err != nil {
				s.log.Warn("price feed notify failed", "session_id", sessionID, "error", err)
			}
		}(started.DurationSeconds)
	}
	return started, nil
}

// End moves a started session to ended. Ending an already ended
// session succeeds without writing anything; the finalizer runs only
// on the call that performed the transition.
func (s *Service) End(ctx context.Context, sessionID string) (*Session, error) {
	var (
		ended        *Session
		transitioned bool
	)
	err := s.mutateSession(ctx, sessionID, func(sess *Session) ([]Transaction, error) {
		transitioned = false
		switch sess.State {
		case StateOpen:
			return nil, ErrSessionNotActive
		case StateEnded:
			// Already read-only; do not rewrite the record.
			ended = sess
			return nil, errSessionUnchanged
		}
		now := s.now().UTC()
		sess.State = StateEnded
		sess.EndedAt = &now
		transitioned = true
		ended = sess
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return ended, nil
	}

	s.log.Info("session ended", "session_id", sessionID)
	if s.finalize != nil {
		rec := FinalizeRecord{
			SessionID: sessionID,
			EndedAt:   *ended.EndedAt,
			Standings: standingsFromSession(ended),
		}
		if err := s.finalize.Finalize(ctx, rec); err != nil {
			// The state transition already committed; the miss is
			// logged rather than retried so End stays idempotent.
			s.log.Error("finalize failed", "session_id", sessionID, "error", err)
		}
	}
	return ended, nil
}

// ExpireIfDue ends the session when its clock has run out. It reports
// whether an end transition happened.
func (s *Service) ExpireIfDue(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess.State != StateStarted {
		return false, nil
	}
	if s.now().Before(sess.Deadline()) {
		return false, nil
	}
	if _, err := s.End(ctx, sessionID); err != nil {
		return false, err
	}
	return true, nil
}
