// Package store contains the region/pokemon document and every operation on
// it. The whole document lives in memory and is written back to disk after
// each successful mutation.
package store

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ASHISH26940/pokedex/internal/logging"
)

// Saver writes the full document to durable storage.
type Saver interface {
	Save(v any) error
}

// Persister loads the document once and saves it after mutations.
type Persister interface {
	Saver
	Load(v any) (bool, error)
}

// Region is a region id with its pokemon list.
type Region struct {
	ID       string
	Pokemons []Pokemon
}

// Rename is the result of a successful RenameRegion.
type Rename struct {
	OldID string
	NewID string
}

// NewPokemon is one record of a create request. A zero ID or empty Nombre is
// rejected; nil Tipos becomes an empty list.
type NewPokemon struct {
	ID     int
	Nombre string
	Tipos  []string
}

// PokemonPatch is a partial update. Nil fields keep the stored value.
type PokemonPatch struct {
	Nombre *string
	Tipos  []string
}

// Store is the process-wide document guarded by a single lock. Mutations hold
// the write lock across the save, so requests are applied one at a time.
type Store struct {
	mu     sync.RWMutex
	doc    *Document
	saver  Saver
	logger *zap.Logger
}

// New wraps an already loaded document.
func New(doc *Document, saver Saver, logger *zap.Logger) *Store {
	if doc == nil {
		doc = NewDocument()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{doc: doc, saver: saver, logger: logger}
}

// Open loads the document through p. A missing document starts empty. Region
// keys are lowercased in memory, and each list is repaired so every pokemon
// carries its region's key, a non-nil tipos and the list is sorted by id.
func Open(p Persister, logger *zap.Logger) (*Store, error) {
	doc := NewDocument()
	found, err := p.Load(doc)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	s := New(doc, p, logger)
	if !found {
		s.logger.Info("no document on disk, starting empty")
		return s, nil
	}

	for _, key := range doc.Keys() {
		norm := normalizeRegion(key)
		if norm == key {
			continue
		}
		if doc.Has(norm) || norm == "" {
			s.logger.Warn("dropping region with colliding key", zap.String("region", key))
			doc.Delete(key)
			continue
		}
		doc.Rename(key, norm)
	}
	for _, key := range doc.Keys() {
		list, _ := doc.Get(key)
		doc.Set(key, normalizeList(key, list))
	}
	s.logger.Info("document loaded", zap.Int("regions", doc.Len()))
	return s, nil
}

func normalizeList(key string, list []Pokemon) []Pokemon {
	out := cloneList(list)
	for i := range out {
		out[i].Region = key
	}
	slices.SortStableFunc(out, func(a, b Pokemon) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func normalizeRegion(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// parsePokemonID normalizes a path id. ok is false when id is not an integer,
// in which case no pokemon can match.
func parsePokemonID(id string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	return n, err == nil
}

// persist saves the document, running undo to restore the previous in-memory
// state if the write fails. Callers hold s.mu.
func (s *Store) persist(op string, undo func()) error {
	if s.saver == nil {
		return nil
	}
	if err := s.saver.Save(s.doc); err != nil {
		undo()
		s.logger.Error("failed to save document", zap.String("op", op), zap.Error(err))
		return internal("failed to save document", err)
	}
	return nil
}

func (s *Store) region(id string) (string, []Pokemon, error) {
	key := normalizeRegion(id)
	list, ok := s.doc.Get(key)
	if !ok {
		return key, nil, notFoundf("region %q not found", key)
	}
	return key, list, nil
}

func findPokemon(list []Pokemon, id string) int {
	n, ok := parsePokemonID(id)
	if !ok {
		return -1
	}
	return slices.IndexFunc(list, func(p Pokemon) bool { return p.ID == n })
}

// ListRegions returns every region id in storage order.
func (s *Store) ListRegions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Keys()
}

// GetRegion returns a region and a copy of its pokemon.
func (s *Store) GetRegion(id string) (Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, list, err := s.region(id)
	if err != nil {
		return Region{}, err
	}
	return Region{ID: key, Pokemons: cloneList(list)}, nil
}

// CreateRegion adds an empty region.
func (s *Store) CreateRegion(id string) (Region, error) {
	key := normalizeRegion(id)
	if key == "" {
		return Region{}, InvalidInputf("missing region id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Has(key) {
		return Region{}, conflictf("region %q already exists", key)
	}
	s.doc.Set(key, []Pokemon{})
	if err := s.persist("create_region", func() { s.doc.Delete(key) }); err != nil {
		return Region{}, err
	}

	s.logger.Debug("region created", zap.String("region", key))
	return Region{ID: key, Pokemons: []Pokemon{}}, nil
}

// RenameRegion moves a region to a new id. The moved pokemon get their region
// field rewritten. Renaming a region to its own id is a no-op.
func (s *Store) RenameRegion(oldID, newID string) (Rename, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey, list, err := s.region(oldID)
	if err != nil {
		return Rename{}, err
	}
	newKey := normalizeRegion(newID)
	if newKey == "" {
		return Rename{}, InvalidInputf("missing new region id")
	}
	if newKey == oldKey {
		return Rename{OldID: oldKey, NewID: newKey}, nil
	}
	if s.doc.Has(newKey) {
		return Rename{}, conflictf("region %q already exists", newKey)
	}

	moved := cloneList(list)
	for i := range moved {
		moved[i].Region = newKey
	}
	s.doc.Rename(oldKey, newKey)
	s.doc.Set(newKey, moved)

	undo := func() {
		s.doc.Rename(newKey, oldKey)
		s.doc.Set(oldKey, list)
	}
	if err := s.persist("rename_region", undo); err != nil {
		return Rename{}, err
	}

	s.logger.Debug("region renamed", zap.String("from", oldKey), zap.String("to", newKey))
	return Rename{OldID: oldKey, NewID: newKey}, nil
}

// DeleteRegion removes a region together with its pokemon and returns them.
func (s *Store) DeleteRegion(id string) (Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, list, err := s.region(id)
	if err != nil {
		return Region{}, err
	}
	idx := s.doc.Delete(key)
	if err := s.persist("delete_region", func() { s.doc.insertAt(idx, key, list) }); err != nil {
		return Region{}, err
	}

	s.logger.Debug("region deleted", zap.String("region", key), zap.Int("pokemons", len(list)))
	return Region{ID: key, Pokemons: cloneList(list)}, nil
}

// ListPokemon returns the pokemon of a region that match f.
func (s *Store) ListPokemon(regionID string, f Filter) ([]Pokemon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, list, err := s.region(regionID)
	if err != nil {
		return nil, err
	}
	match := f.matcher()
	out := make([]Pokemon, 0, len(list))
	for _, p := range list {
		if match(p) {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

// GetPokemon returns one pokemon of a region.
func (s *Store) GetPokemon(regionID, id string) (Pokemon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, list, err := s.region(regionID)
	if err != nil {
		return Pokemon{}, err
	}
	idx := findPokemon(list, id)
	if idx < 0 {
		return Pokemon{}, notFoundf("pokemon %s not found in region %q", id, key)
	}
	return list[idx].clone(), nil
}

// CreatePokemon adds a batch of pokemon to a region. The batch is validated as
// a whole against the region's current list and against itself; if any record
// fails nothing is inserted. The region list stays sorted by id.
func (s *Store) CreatePokemon(regionID string, batch []NewPokemon) ([]Pokemon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, list, err := s.region(regionID)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return []Pokemon{}, nil
	}

	existing := make(map[int]bool, len(list)+len(batch))
	for _, p := range list {
		existing[p.ID] = true
	}
	created := make([]Pokemon, 0, len(batch))
	for _, in := range batch {
		if in.ID == 0 || in.Nombre == "" {
			return nil, InvalidInputf("missing required fields: id, nombre")
		}
		if existing[in.ID] {
			return nil, conflictf("pokemon with id %d already exists in region %q", in.ID, key)
		}
		existing[in.ID] = true

		tipos := make([]string, len(in.Tipos))
		copy(tipos, in.Tipos)
		created = append(created, Pokemon{ID: in.ID, Nombre: in.Nombre, Tipos: tipos, Region: key})
	}

	next := append(cloneList(list), cloneList(created)...)
	slices.SortStableFunc(next, func(a, b Pokemon) int { return cmp.Compare(a.ID, b.ID) })
	s.doc.Set(key, next)
	if err := s.persist("create_pokemon", func() { s.doc.Set(key, list) }); err != nil {
		return nil, err
	}

	s.logger.Debug("pokemon created", zap.String("region", key), zap.Int("count", len(created)))
	return created, nil
}

// UpdatePokemon applies a partial update. The stored region field is always
// reset to the region the pokemon lives in.
func (s *Store) UpdatePokemon(regionID, id string, patch PokemonPatch) (Pokemon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, list, err := s.region(regionID)
	if err != nil {
		return Pokemon{}, err
	}
	idx := findPokemon(list, id)
	if idx < 0 {
		return Pokemon{}, notFoundf("pokemon %s not found in region %q", id, key)
	}

	updated := list[idx].clone()
	if patch.Nombre != nil {
		updated.Nombre = *patch.Nombre
	}
	if patch.Tipos != nil {
		updated.Tipos = slices.Clone(patch.Tipos)
	}
	updated.Region = key

	next := cloneList(list)
	next[idx] = updated
	s.doc.Set(key, next)
	if err := s.persist("update_pokemon", func() { s.doc.Set(key, list) }); err != nil {
		return Pokemon{}, err
	}

	s.logger.Debug("pokemon updated", zap.String("region", key), zap.Int("id", updated.ID))
	return updated.clone(), nil
}

// DeletePokemon removes one pokemon from a region and returns it.
func (s *Store) DeletePokemon(regionID, id string) (Pokemon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, list, err := s.region(regionID)
	if err != nil {
		return Pokemon{}, err
	}
	idx := findPokemon(list, id)
	if idx < 0 {
		return Pokemon{}, notFoundf("pokemon %s not found in region %q", id, key)
	}

	deleted := list[idx].clone()
	next := slices.Delete(cloneList(list), idx, idx+1)
	s.doc.Set(key, next)
	if err := s.persist("delete_pokemon", func() { s.doc.Set(key, list) }); err != nil {
		return Pokemon{}, err
	}

	s.logger.Debug("pokemon deleted", zap.String("region", key), zap.Int("id", deleted.ID))
	return deleted, nil
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewDocument()
	for _, key := range s.doc.order {
		out.Set(key, cloneList(s.doc.lists[key]))
	}
	return out
}
