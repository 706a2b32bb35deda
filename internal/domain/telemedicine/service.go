package telemedicine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/metrics"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/ws"
)

// TxRunner runs fn atomically. Repositories pick the transaction up
// from the context fn receives.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	publisher ws.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	baseURL   string
	inTx      TxRunner

	maxDuration time.Duration

	now func() time.Time
}

func NewService(repo Repository, publisher ws.Publisher, m *metrics.Metrics, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.With().Str("component", "telemedicine").Logger(),
		baseURL:     baseURL,
		maxDuration: MaxSessionDuration,
		now:         time.Now,
	}
}

// SetMaxDuration overrides how long a session may stay open after it
// starts. Values <= 0 keep the default.
func (s *Service) SetMaxDuration(d time.Duration) {
	if d > 0 {
		s.maxDuration = d
	}
}

// SetTxRunner wires the transaction boundary used by multi-write
// operations. Without one those writes run unwrapped.
func (s *Service) SetTxRunner(run TxRunner) { s.inTx = run }

func (s *Service) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx == nil {
		return fn(ctx)
	}
	return s.inTx(ctx, fn)
}

// CreateForAppointment opens a waiting room session for an appointment.
// An appointment has at most one open session.
func (s *Service) CreateForAppointment(ctx context.Context, appointmentID, patientID, providerID uuid.UUID) (*Session, error) {
	if appointmentID == uuid.Nil || patientID == uuid.Nil || providerID == uuid.Nil {
		return nil, fmt.Errorf("appointment_id, patient_id, and provider_id are required")
	}
	if existing, err := s.repo.GetByAppointment(ctx, appointmentID); err == nil && existing != nil && existing.open() {
		return nil, fmt.Errorf("appointment already has an open session")
	}

	token, err := roomToken()
	if err != nil {
		return nil, fmt.Errorf("generate room token: %w", err)
	}
	sess := &Session{
		AppointmentID: appointmentID,
		PatientID:     patientID,
		ProviderID:    providerID,
		Status:        StatusWaiting,
		RoomToken:     token,
	}
	// The session row and its join URL are written in one transaction so
	// a failed second write cannot strand a URL-less session.
	err = s.atomically(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sess.JoinURL = fmt.Sprintf("%s/room/%s", s.baseURL, sess.ID)
		if err := s.repo.Update(ctx, sess); err != nil {
			return fmt.Errorf("store join url: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

// AuthorizeTopic lets the WebSocket hub vet telemedicine topic
// subscriptions. Only a session's participants may follow its room.
func (s *Service) AuthorizeTopic(ctx context.Context, userID, topic string) bool {
	raw, found := strings.CutPrefix(topic, "telemedicine/")
	if !found {
		return false
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return false
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return false
	}
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false
	}
	return sess.participant(uid, nil)
}

// Join records a participant entering the room. The session moves from
// waiting to in-progress once both sides have joined; started_at is
// stamped on the first join.
func (s *Service) Join(ctx context.Context, id uuid.UUID, userID uuid.UUID, roles []string) (*JoinResult, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session not found")
	}
	if sess.Status != StatusWaiting && sess.Status != StatusInProgress {
		return nil, fmt.Errorf("session is %s", sess.Status)
	}

	switch {
	case userID == sess.PatientID:
		sess.PatientJoined = true
	case userID == sess.ProviderID || auth.HasRole(roles, auth.RoleAdmin):
		sess.ProviderJoined = true
	default:
		return nil, fmt.Errorf("not a participant of this session")
	}

	if sess.StartedAt == nil {
		now := s.now()
		sess.StartedAt = &now
	}
	if sess.PatientJoined && sess.ProviderJoined && sess.Status == StatusWaiting {
		sess.Status = StatusInProgress
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.broadcast(ctx, sess, "session.participant_joined")
	return &JoinResult{Session: sess, JoinURL: sess.JoinURL, RoomToken: sess.RoomToken}, nil
}

// End completes an open session. Only a participant or an admin may
// end it.
func (s *Service) End(ctx context.Context, id, userID uuid.UUID, roles []string) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session not found")
	}
	if !sess.participant(userID, roles) {
		return nil, fmt.Errorf("not a participant of this session")
	}
	if !sess.open() {
		return nil, fmt.Errorf("session is %s", sess.Status)
	}
	now := s.now()
	sess.Status = StatusCompleted
	sess.EndedAt = &now
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	s.broadcast(ctx, sess, "session.ended")
	return sess, nil
}

// Cancel cancels a session that has not started. Only a participant or
// an admin may cancel it.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID, roles []string) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session not found")
	}
	if !sess.participant(userID, roles) {
		return nil, fmt.Errorf("not a participant of this session")
	}
	if sess.Status != StatusScheduled && sess.Status != StatusWaiting {
		return nil, fmt.Errorf("cannot cancel a session that is %s", sess.Status)
	}
	sess.Status = StatusCancelled
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	s.broadcast(ctx, sess, "session.cancelled")
	return sess, nil
}

func (s *Service) WaitingForProvider(ctx context.Context, providerID uuid.UUID) ([]*Session, error) {
	return s.repo.ListWaitingByProvider(ctx, providerID)
}

// TestConnection classifies a reported latency sample for the pre-call
// check. Anything under 150ms with usable bandwidth passes.
func (s *Service) TestConnection(latencyMS, bandwidthKbps int) *ConnectionTest {
	t := &ConnectionTest{LatencyMS: latencyMS, TestedAt: s.now().UTC()}
	switch {
	case bandwidthKbps >= 3000:
		t.BandwidthClass = "good"
	case bandwidthKbps >= 800:
		t.BandwidthClass = "fair"
	default:
		t.BandwidthClass = "poor"
	}
	t.Passed = latencyMS > 0 && latencyMS < 150 && t.BandwidthClass != "poor"
	return t
}

// Sweep expires every open session that started maxDuration or more
// ago. It returns the number of sessions expired.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open sessions: %w", err)
	}

	now := s.now()
	expired := 0
	for _, sess := range open {
		if sess.StartedAt == nil || now.Sub(*sess.StartedAt) < s.maxDuration {
			continue
		}
		sess.Status = StatusExpired
		sess.EndedAt = &now
		if err := s.repo.Update(ctx, sess); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID.String()).Msg("expire session")
			continue
		}
		expired++
		if s.metrics != nil {
			s.metrics.SessionsExpired.Inc()
		}
		s.broadcast(ctx, sess, "session.expired")
	}
	return expired, nil
}

// StartWatcher runs Sweep on the given interval until ctx is cancelled.
func (s *Service) StartWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.Sweep(ctx); err != nil {
					s.logger.Error().Err(err).Msg("session sweep failed")
				} else if n > 0 {
					s.logger.Info().Int("expired", n).Msg("session sweep expired sessions")
				}
			}
		}
	}()
}

func (s *Service) broadcast(ctx context.Context, sess *Session, eventType string) {
	if s.publisher == nil {
		return
	}
	topic := ws.SessionTopic(sess.ID)
	_ = s.publisher.Publish(ctx, ws.NewEvent(eventType, topic, map[string]string{
		"session_id": sess.ID.String(),
		"status":     sess.Status,
	}))
}

func roomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
