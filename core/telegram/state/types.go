package state

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// State identifies a step of the quiz creation conversation.
type State uint8

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = iota
	// StateChoosingType waits for the anonymous / non-anonymous choice.
	StateChoosingType
	// StateWaitingJSON waits for the quiz JSON document.
	StateWaitingJSON
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateChoosingType: "choosing_type",
	StateWaitingJSON:  "waiting_json",
}

// String returns the wire name of the state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return int(s) < len(stateNames)
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("state: invalid value %d", s)
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("state: unknown name %q", text)
}

// Event drives a session transition.
type Event uint8

const (
	// EventStart resets the conversation to the type choice (/start).
	EventStart Event = iota
	// EventSelectType records the anonymity choice and waits for JSON.
	EventSelectType
	// EventQuizDone completes a submission and returns to the type choice.
	EventQuizDone
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSelectType:
		return "select_type"
	case EventQuizDone:
		return "quiz_done"
	}
	return "event(" + strconv.Itoa(int(e)) + ")"
}

// ErrInvalidTransition is returned when an event is not allowed in the current state.
var ErrInvalidTransition = errors.New("state: invalid transition")

// Next returns the state reached from s on ev.
func (s State) Next(ev Event) (State, error) {
	switch ev {
	case EventStart:
		switch s {
		case StateIdle, StateChoosingType, StateWaitingJSON:
			return StateChoosingType, nil
		}
	case EventSelectType:
		if s == StateChoosingType {
			return StateWaitingJSON, nil
		}
	case EventQuizDone:
		if s == StateWaitingJSON {
			return StateChoosingType, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}

// Session is the persisted per-user conversation record.
type Session struct {
	UserID       int64     `json:"user_id"`
	State        State     `json:"state"`
	Anonymous    bool      `json:"anonymous"`
	LastActivity time.Time `json:"last_activity"`
	QuizCount    int       `json:"quiz_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSession returns the default idle session for a user.
func NewSession(userID int64, now time.Time) Session {
	return Session{
		UserID:       userID,
		State:        StateIdle,
		Anonymous:    true,
		LastActivity: now,
		CreatedAt:    now,
	}
}

// Start applies EventStart.
func (s *Session) Start() error {
	return s.apply(EventStart)
}

// SelectType applies EventSelectType. The anonymity flag is only written
// together with a successful transition.
func (s *Session) SelectType(anonymous bool) error {
	if err := s.apply(EventSelectType); err != nil {
		return err
	}
	s.Anonymous = anonymous
	return nil
}

// CompleteQuiz applies EventQuizDone and bumps the quiz counter.
func (s *Session) CompleteQuiz() error {
	if err := s.apply(EventQuizDone); err != nil {
		return err
	}
	s.QuizCount++
	return nil
}

func (s *Session) apply(ev Event) error {
	next, err := s.State.Next(ev)
	if err != nil {
		return err
	}
	s.State = next
	return nil
}

// Expired reports whether the session has been idle for longer than ttl.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > ttl
}

// Key returns the storage key for a user id.
func Key(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
