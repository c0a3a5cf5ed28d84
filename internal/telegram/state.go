package telegram

import "sync"

// conversation states, one per user
type state int

const (
	stateIdle state = iota
	stateAwaitingEmail
	stateAwaitingPhone
	stateAwaitingBroadcastText
	stateAwaitingImportCSV
	stateAwaitingGradeThreshold
	stateAwaitingGradeRewards
	stateAwaitingTipsText
	stateAwaitingContact
)

// stateStore is an in-memory FSM keyed by user id. State does not survive a
// restart; unfinished dialogs just start over.
type stateStore struct {
	mu     sync.Mutex
	states map[int64]state
	data   map[int64]map[string]string
}

func newStateStore() *stateStore {
	return &stateStore{
		states: make(map[int64]state),
		data:   make(map[int64]map[string]string),
	}
}

func (s *stateStore) get(userID int64) state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

func (s *stateStore) set(userID int64, st state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
}

func (s *stateStore) clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	delete(s.data, userID)
}

func (s *stateStore) setData(userID int64, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[userID] == nil {
		s.data[userID] = make(map[string]string)
	}
	s.data[userID][key] = value
}

func (s *stateStore) getData(userID int64, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[userID][key]
}
