package checkpoint

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/viant/afs"
	"github.com/viant/handlegen/service/dao"
)

// StateFile is the checkpoint location relative to the state root.
const StateFile = "state.json"

// State is the durable scan cursor. CurrentIndex is the 0-based offset of
// the next candidate to probe within CurrentBatch.
type State struct {
	CurrentBatch uint64 `json:"current_batch"`
	CurrentIndex uint64 `json:"current_index"`
	TotalChecks  uint64 `json:"total_checks"`
}

// Initial returns the state of a fresh state root.
func Initial() State {
	return State{CurrentBatch: 1}
}

// Store persists State with replace-on-write.
type Store struct {
	doc *dao.Document[State]
}

// NewStore creates a store for the state root.
func NewStore(fs afs.Service, root string) *Store {
	return &Store{doc: dao.NewDocument[State](fs, filepath.Join(root, StateFile))}
}

// Load returns the stored state, or Initial when none was saved.
func (s *Store) Load(ctx context.Context) (State, error) {
	state, err := s.doc.Load(ctx)
	if errors.Is(err, dao.ErrNotFound) {
		return Initial(), nil
	}
	if err != nil {
		return State{}, err
	}
	if state.CurrentBatch == 0 {
		state.CurrentBatch = 1
	}
	return *state, nil
}

// Save replaces the stored state.
func (s *Store) Save(ctx context.Context, state State) error {
	return s.doc.Save(ctx, &state)
}
