// Package session tracks live queries per connection and fans events out
// to the sessions whose queries they match.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/processor"
	"go.uber.org/zap"
)

var (
	errMissingProcessor = errors.New("event processor is required")
	errMissingTriggers  = errors.New("trigger engine is required")
	errMissingSession   = errors.New("session id is required")
	// ErrParamsMismatch is returned when query params do not fit the kind.
	ErrParamsMismatch = errors.New("query params do not match query kind")
)

// QueryKind names one of the three live query maps of a session.
type QueryKind string

const (
	QueryMessages      QueryKind = "messages"
	QueryContexts      QueryKind = "contexts"
	QueryNotifications QueryKind = "notifications"
)

// BroadcastFunc delivers event to the listed sessions.
type BroadcastFunc func(ctx context.Context, sessionIDs []string, event communication.Event) error

type EventProcessor interface {
	Process(ctx context.Context, info communication.ConnectionInfo, command communication.Command) (processor.Result, error)
}

type TriggerEngine interface {
	Process(ctx context.Context, info communication.ConnectionInfo, event communication.Event) ([]communication.Event, error)
}

type Config struct {
	Processor EventProcessor
	Triggers  TriggerEngine
	Broadcast BroadcastFunc
	Logger    *zap.Logger
}

type session struct {
	info          communication.ConnectionInfo
	messages      map[string]communication.FindMessagesParams
	contexts      map[string]communication.FindNotificationContextParams
	notifications map[string]communication.FindNotificationsParams
}

func newSession(info communication.ConnectionInfo) *session {
	return &session{
		info:          info,
		messages:      make(map[string]communication.FindMessagesParams),
		contexts:      make(map[string]communication.FindNotificationContextParams),
		notifications: make(map[string]communication.FindNotificationsParams),
	}
}

func (s *session) empty() bool {
	return len(s.messages) == 0 && len(s.contexts) == 0 && len(s.notifications) == 0
}

// Manager is safe for concurrent use. Subscriptions live in memory only;
// clients re-subscribe after reconnecting.
type Manager struct {
	processor EventProcessor
	triggers  TriggerEngine
	broadcast BroadcastFunc
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Processor == nil {
		return nil, errMissingProcessor
	}
	if cfg.Triggers == nil {
		return nil, errMissingTriggers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		processor: cfg.Processor,
		triggers:  cfg.Triggers,
		broadcast: cfg.Broadcast,
		logger:    logger,
		sessions:  make(map[string]*session),
	}, nil
}

// Register records the session without any query.
func (m *Manager) Register(info communication.ConnectionInfo) error {
	if info.SessionID == "" {
		return errMissingSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(info)
	return nil
}

func (m *Manager) ensure(info communication.ConnectionInfo) *session {
	existing, ok := m.sessions[info.SessionID]
	if !ok {
		existing = newSession(info)
		m.sessions[info.SessionID] = existing
	}
	return existing
}

// Subscribe stores params under (kind, id) for the session, replacing any
// previous params with the same id and kind.
func (m *Manager) Subscribe(info communication.ConnectionInfo, kind QueryKind, id string, params any) error {
	if info.SessionID == "" {
		return errMissingSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case QueryMessages:
		typed, ok := params.(communication.FindMessagesParams)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrParamsMismatch, kind, params)
		}
		m.ensure(info).messages[id] = typed
	case QueryContexts:
		typed, ok := params.(communication.FindNotificationContextParams)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrParamsMismatch, kind, params)
		}
		m.ensure(info).contexts[id] = typed
	case QueryNotifications:
		typed, ok := params.(communication.FindNotificationsParams)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrParamsMismatch, kind, params)
		}
		m.ensure(info).notifications[id] = typed
	default:
		return fmt.Errorf("unknown query kind %q", kind)
	}
	return nil
}

func (m *Manager) SubscribeMessages(info communication.ConnectionInfo, id string, params communication.FindMessagesParams) error {
	return m.Subscribe(info, QueryMessages, id, params)
}

func (m *Manager) SubscribeContexts(info communication.ConnectionInfo, id string, params communication.FindNotificationContextParams) error {
	return m.Subscribe(info, QueryContexts, id, params)
}

func (m *Manager) SubscribeNotifications(info communication.ConnectionInfo, id string, params communication.FindNotificationsParams) error {
	return m.Subscribe(info, QueryNotifications, id, params)
}

// Unsubscribe removes id from every query kind of the session.
func (m *Manager) Unsubscribe(sessionID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(existing.messages, id)
	delete(existing.contexts, id)
	delete(existing.notifications, id)
}

func (m *Manager) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len reports the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Event processes the command and fans its event out. The returned result
// is valid even when delivery failed.
func (m *Manager) Event(ctx context.Context, info communication.ConnectionInfo, command communication.Command) (communication.EventResult, error) {
	if info.SessionID != "" {
		m.mu.Lock()
		m.ensure(info)
		m.mu.Unlock()
	}
	result, err := m.processor.Process(ctx, info, command)
	if err != nil {
		return communication.EventResult{}, err
	}
	if result.Event == nil {
		return result.Result, nil
	}
	return result.Result, m.Next(ctx, info, result.Event)
}

// Next broadcasts event and everything derived from it breadth first: each
// event reaches its sessions before the triggers it causes run.
func (m *Manager) Next(ctx context.Context, info communication.ConnectionInfo, event communication.Event) error {
	var failures []error
	queue := []communication.Event{event}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		current := queue[0]
		queue = queue[1:]

		if sessionIDs := m.matching(current); len(sessionIDs) > 0 && m.broadcast != nil {
			if err := m.broadcast(ctx, sessionIDs, current); err != nil {
				failures = append(failures, fmt.Errorf("broadcast %s: %w", current.Kind(), err))
			}
		}

		derived, err := m.triggers.Process(ctx, info, current)
		if err != nil {
			m.logger.Error("trigger failed",
				zap.String("event", string(current.Kind())),
				zap.Int("derived", len(derived)),
				zap.Error(err))
		}
		queue = append(queue, derived...)
	}
	return errors.Join(failures...)
}

func (m *Manager) matching(event communication.Event) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sessionIDs []string
	for id, candidate := range m.sessions {
		if candidate.empty() {
			continue
		}
		matched, err := matches(candidate, event)
		if err != nil {
			m.logger.Error("event not routed", zap.String("event", string(event.Kind())), zap.Error(err))
			return nil
		}
		if matched {
			sessionIDs = append(sessionIDs, id)
		}
	}
	sort.Strings(sessionIDs)
	return sessionIDs
}
