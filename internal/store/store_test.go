package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ASHISH26940/pokedex/internal/persistence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSaver counts saves and fails when err is set.
type recordingSaver struct {
	mu    sync.Mutex
	saves int
	last  []byte
	err   error
}

func (r *recordingSaver) Save(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves++
	b, err := v.(*Document).MarshalJSON()
	if err != nil {
		return err
	}
	r.last = b
	return nil
}

func newTestStore(t *testing.T) (*Store, *recordingSaver) {
	t.Helper()
	saver := &recordingSaver{}
	return New(NewDocument(), saver, nil), saver
}

func seedKanto(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.CreateRegion("Kanto")
	require.NoError(t, err)
	_, err = s.CreatePokemon("kanto", []NewPokemon{
		{ID: 25, Nombre: "Pikachu", Tipos: []string{"Eléctrico"}},
		{ID: 4, Nombre: "Charmander", Tipos: []string{"fuego"}},
		{ID: 1, Nombre: "Bulbasaur", Tipos: []string{"planta", "veneno"}},
	})
	require.NoError(t, err)
}

func TestStore_RegionLifecycle(t *testing.T) {
	s, saver := newTestStore(t)
	assert.NotNil(t, s.ListRegions())
	assert.Empty(t, s.ListRegions())

	r, err := s.CreateRegion("  Kanto ")
	require.NoError(t, err)
	assert.Equal(t, "kanto", r.ID)
	assert.Empty(t, r.Pokemons)
	assert.NotNil(t, r.Pokemons)
	assert.Equal(t, 1, saver.saves)

	got, err := s.GetRegion("KANTO")
	require.NoError(t, err)
	assert.Equal(t, Region{ID: "kanto", Pokemons: []Pokemon{}}, got)

	_, err = s.CreateRegion("johto")
	require.NoError(t, err)
	assert.Equal(t, []string{"kanto", "johto"}, s.ListRegions())

	_, err = s.CreateRegion("kanto")
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = s.CreateRegion("   ")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, 2, saver.saves)
}

func TestStore_RenameRegion(t *testing.T) {
	s, saver := newTestStore(t)
	seedKanto(t, s)
	_, err := s.CreateRegion("hoenn")
	require.NoError(t, err)
	_, err = s.CreateRegion("sinnoh")
	require.NoError(t, err)
	before := saver.saves

	t.Run("missing region", func(t *testing.T) {
		_, err := s.RenameRegion("galar", "paldea")
		assert.Equal(t, KindNotFound, KindOf(err))
	})
	t.Run("missing new id", func(t *testing.T) {
		_, err := s.RenameRegion("kanto", "")
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})
	t.Run("collision", func(t *testing.T) {
		_, err := s.RenameRegion("kanto", "Sinnoh")
		assert.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("rename to self is a no-op", func(t *testing.T) {
		res, err := s.RenameRegion("Kanto", "KANTO")
		require.NoError(t, err)
		assert.Equal(t, Rename{OldID: "kanto", NewID: "kanto"}, res)
	})
	assert.Equal(t, before, saver.saves)

	res, err := s.RenameRegion("kanto", "Kanto-Remake")
	require.NoError(t, err)
	assert.Equal(t, Rename{OldID: "kanto", NewID: "kanto-remake"}, res)
	assert.Equal(t, before+1, saver.saves)

	// Position is kept and the region field follows the new key.
	assert.Equal(t, []string{"kanto-remake", "hoenn", "sinnoh"}, s.ListRegions())
	r, err := s.GetRegion("kanto-remake")
	require.NoError(t, err)
	require.Len(t, r.Pokemons, 3)
	for _, p := range r.Pokemons {
		assert.Equal(t, "kanto-remake", p.Region)
	}
	_, err = s.GetRegion("kanto")
	assert.True(t, IsNotFound(err))
}

func TestStore_DeleteRegion(t *testing.T) {
	s, _ := newTestStore(t)
	seedKanto(t, s)

	before, err := s.GetRegion("kanto")
	require.NoError(t, err)

	deleted, err := s.DeleteRegion("Kanto")
	require.NoError(t, err)
	assert.Equal(t, before, deleted)
	assert.Empty(t, s.ListRegions())

	_, err = s.DeleteRegion("kanto")
	assert.True(t, IsNotFound(err))
}

func TestStore_MissingRegionNeverMutates(t *testing.T) {
	s, saver := newTestStore(t)
	seedKanto(t, s)
	snap := s.Snapshot()
	saves := saver.saves

	name := "x"
	ops := map[string]func() error{
		"get region":     func() error { _, err := s.GetRegion("galar"); return err },
		"rename region":  func() error { _, err := s.RenameRegion("galar", "x"); return err },
		"delete region":  func() error { _, err := s.DeleteRegion("galar"); return err },
		"list pokemon":   func() error { _, err := s.ListPokemon("galar", Filter{}); return err },
		"get pokemon":    func() error { _, err := s.GetPokemon("galar", "1"); return err },
		"create pokemon": func() error { _, err := s.CreatePokemon("galar", []NewPokemon{{ID: 9, Nombre: "x"}}); return err },
		"update pokemon": func() error { _, err := s.UpdatePokemon("galar", "1", PokemonPatch{Nombre: &name}); return err },
		"delete pokemon": func() error { _, err := s.DeletePokemon("galar", "1"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.Equal(t, KindNotFound, KindOf(err))
			assert.Contains(t, err.Error(), "region")
		})
	}

	assert.Empty(t, cmp.Diff(snap, s.Snapshot(), cmp.AllowUnexported(Document{})))
	assert.Equal(t, saves, saver.saves)
}

func TestStore_CreatePokemonSortsAndAnnotates(t *testing.T) {
	s, _ := newTestStore(t)
	seedKanto(t, s)

	created, err := s.CreatePokemon("KANTO", []NewPokemon{{ID: 7, Nombre: "Squirtle"}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, Pokemon{ID: 7, Nombre: "Squirtle", Tipos: []string{}, Region: "kanto"}, created[0])

	got, err := s.GetPokemon("kanto", "7")
	require.NoError(t, err)
	assert.Equal(t, created[0], got)

	list, err := s.ListPokemon("kanto", Filter{})
	require.NoError(t, err)
	ids := make([]int, len(list))
	for i, p := range list {
		ids[i] = p.ID
		assert.Equal(t, "kanto", p.Region)
	}
	assert.Equal(t, []int{1, 4, 7, 25}, ids)
}

func TestStore_CreatePokemonRejectsWholeBatch(t *testing.T) {
	s, saver := newTestStore(t)
	seedKanto(t, s)
	before, err := s.ListPokemon("kanto", Filter{})
	require.NoError(t, err)
	saves := saver.saves

	cases := []struct {
		name  string
		batch []NewPokemon
		kind  Kind
	}{
		{"missing id", []NewPokemon{{ID: 150, Nombre: "Mewtwo"}, {Nombre: "Mew"}}, KindInvalidInput},
		{"missing nombre", []NewPokemon{{ID: 150}}, KindInvalidInput},
		{"existing id", []NewPokemon{{ID: 150, Nombre: "Mewtwo"}, {ID: 25, Nombre: "Raichu"}}, KindConflict},
		{"duplicate inside batch", []NewPokemon{{ID: 150, Nombre: "Mewtwo"}, {ID: 150, Nombre: "Mewtwo"}}, KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreatePokemon("kanto", tc.batch)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}

	after, err := s.ListPokemon("kanto", Filter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, saver.saves)
}

func TestStore_CreatePokemonEmptyBatch(t *testing.T) {
	s, saver := newTestStore(t)
	seedKanto(t, s)
	saves := saver.saves

	created, err := s.CreatePokemon("kanto", nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, saves, saver.saves)
}

func TestStore_GetPokemon(t *testing.T) {
	s, _ := newTestStore(t)
	seedKanto(t, s)

	p, err := s.GetPokemon("kanto", " 25 ")
	require.NoError(t, err)
	assert.Equal(t, "Pikachu", p.Nombre)

	for _, id := range []string{"26", "pikachu", ""} {
		_, err := s.GetPokemon("kanto", id)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "pokemon")
	}

	// Returned values are copies.
	p.Tipos[0] = "agua"
	again, err := s.GetPokemon("kanto", "25")
	require.NoError(t, err)
	assert.Equal(t, []string{"Eléctrico"}, again.Tipos)
}

func TestStore_ListPokemonFilters(t *testing.T) {
	s, _ := newTestStore(t)
	seedKanto(t, s)

	names := func(list []Pokemon) []string {
		out := make([]string, 0, len(list))
		for _, p := range list {
			out = append(out, p.Nombre)
		}
		return out
	}

	cases := []struct {
		filter Filter
		want   []string
	}{
		{Filter{}, []string{"Bulbasaur", "Charmander", "Pikachu"}},
		{Filter{Name: "pika"}, []string{"Pikachu"}},
		{Filter{Name: "PÍKA"}, []string{"Pikachu"}},
		{Filter{Name: "A"}, []string{"Bulbasaur", "Charmander", "Pikachu"}},
		{Filter{Name: "saur"}, []string{"Bulbasaur"}},
		{Filter{Type: "electrico"}, []string{"Pikachu"}},
		{Filter{Type: "ELÉCTRICO"}, []string{"Pikachu"}},
		{Filter{Type: "elec"}, []string{}},
		{Filter{Type: "veneno"}, []string{"Bulbasaur"}},
		{Filter{Name: "char", Type: "fuego"}, []string{"Charmander"}},
		{Filter{Name: "char", Type: "planta"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%+v", tc.filter), func(t *testing.T) {
			got, err := s.ListPokemon("kanto", tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestStore_UpdatePokemon(t *testing.T) {
	s, _ := newTestStore(t)
	seedKanto(t, s)

	name := "Raichu"
	p, err := s.UpdatePokemon("kanto", "25", PokemonPatch{Nombre: &name})
	require.NoError(t, err)
	assert.Equal(t, Pokemon{ID: 25, Nombre: "Raichu", Tipos: []string{"Eléctrico"}, Region: "kanto"}, p)

	p, err = s.UpdatePokemon("Kanto", "25", PokemonPatch{Tipos: []string{"eléctrico", "acero"}})
	require.NoError(t, err)
	assert.Equal(t, "Raichu", p.Nombre)
	assert.Equal(t, []string{"eléctrico", "acero"}, p.Tipos)

	p, err = s.UpdatePokemon("kanto", "25", PokemonPatch{Tipos: []string{}})
	require.NoError(t, err)
	assert.Empty(t, p.Tipos)

	stored, err := s.GetPokemon("kanto", "25")
	require.NoError(t, err)
	assert.Equal(t, p, stored)

	empty := ""
	p, err = s.UpdatePokemon("kanto", "25", PokemonPatch{Nombre: &empty})
	require.NoError(t, err)
	assert.Equal(t, "", p.Nombre)

	_, err = s.UpdatePokemon("kanto", "999", PokemonPatch{Nombre: &name})
	assert.True(t, IsNotFound(err))
}

func TestStore_UpdatePokemonResetsRegionField(t *testing.T) {
	doc := NewDocument()
	doc.Set("kanto", []Pokemon{{ID: 1, Nombre: "Bulbasaur", Tipos: []string{"planta"}, Region: "stale"}})
	s := New(doc, &recordingSaver{}, nil)

	p, err := s.UpdatePokemon("kanto", "1", PokemonPatch{})
	require.NoError(t, err)
	assert.Equal(t, "kanto", p.Region)
}

func TestStore_DeletePokemon(t *testing.T) {
	s, _ := newTestStore(t)
	seedKanto(t, s)

	p, err := s.DeletePokemon("kanto", "4")
	require.NoError(t, err)
	assert.Equal(t, "Charmander", p.Nombre)

	_, err = s.GetPokemon("kanto", "4")
	assert.True(t, IsNotFound(err))

	list, err := s.ListPokemon("kanto", Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = s.DeletePokemon("kanto", "4")
	assert.True(t, IsNotFound(err))
}

func TestStore_SaveFailureRollsBack(t *testing.T) {
	s, saver := newTestStore(t)
	seedKanto(t, s)
	_, err := s.CreateRegion("johto")
	require.NoError(t, err)
	snap := s.Snapshot()

	saver.err = errors.New("disk full")
	name := "Raichu"
	ops := map[string]func() error{
		"create region":  func() error { _, err := s.CreateRegion("hoenn"); return err },
		"rename region":  func() error { _, err := s.RenameRegion("kanto", "hoenn"); return err },
		"delete region":  func() error { _, err := s.DeleteRegion("kanto"); return err },
		"create pokemon": func() error { _, err := s.CreatePokemon("kanto", []NewPokemon{{ID: 2, Nombre: "Ivysaur"}}); return err },
		"update pokemon": func() error { _, err := s.UpdatePokemon("kanto", "25", PokemonPatch{Nombre: &name}); return err },
		"delete pokemon": func() error { _, err := s.DeletePokemon("kanto", "25"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.Equal(t, KindInternal, KindOf(err))
			assert.ErrorIs(t, err, saver.err)
			assert.Empty(t, cmp.Diff(snap, s.Snapshot(), cmp.AllowUnexported(Document{})))
		})
	}
}

func TestStore_OpenRoundTrip(t *testing.T) {
	file := persistence.NewFile(filepath.Join(t.TempDir(), "pokedex.json"))

	s, err := Open(file, nil)
	require.NoError(t, err)
	assert.Empty(t, s.ListRegions())

	seedKanto(t, s)
	_, err = s.CreateRegion("johto")
	require.NoError(t, err)
	_, err = s.CreateRegion("alola")
	require.NoError(t, err)
	_, err = s.CreatePokemon("johto", []NewPokemon{{ID: 152, Nombre: "Chikorita", Tipos: []string{"planta"}}})
	require.NoError(t, err)

	reopened, err := Open(file, nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(s.Snapshot(), reopened.Snapshot(), cmp.AllowUnexported(Document{})))
	assert.Equal(t, []string{"kanto", "johto", "alola"}, reopened.ListRegions())
}

func TestStore_OpenNormalizesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pokedex.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "Kanto": [
    {"id": 4, "nombre": "Charmander", "tipos": null, "region": "Kanto"},
    {"id": 1, "nombre": "Bulbasaur", "tipos": ["planta"]}
  ],
  "johto": [],
  "JOHTO": []
}`), 0644))
	file := persistence.NewFile(path)

	s, err := Open(file, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"kanto", "johto"}, s.ListRegions())

	list, err := s.ListPokemon("kanto", Filter{})
	require.NoError(t, err)
	assert.Equal(t, []Pokemon{
		{ID: 1, Nombre: "Bulbasaur", Tipos: []string{"planta"}, Region: "kanto"},
		{ID: 4, Nombre: "Charmander", Tipos: []string{}, Region: "kanto"},
	}, list)

	// The next save writes the repaired records.
	_, err = s.CreateRegion("hoenn")
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "null")
	assert.NotContains(t, string(raw), `"Kanto"`)

	var onDisk map[string][]Pokemon
	ok, err := file.Load(&onDisk)
	require.NoError(t, err)
	require.True(t, ok)
	for _, p := range onDisk["kanto"] {
		assert.Equal(t, "kanto", p.Region)
		assert.NotNil(t, p.Tipos)
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s, saver := newTestStore(t)
	_, err := s.CreateRegion("kanto")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, _ = s.CreatePokemon("kanto", []NewPokemon{{ID: id, Nombre: fmt.Sprintf("p%d", id)}})
			_, _ = s.ListPokemon("kanto", Filter{Name: "p"})
		}(i)
	}
	wg.Wait()

	list, err := s.ListPokemon("kanto", Filter{})
	require.NoError(t, err)
	require.Len(t, list, 50)
	for i, p := range list {
		assert.Equal(t, i+1, p.ID)
	}
	assert.Equal(t, 51, saver.saves)
}
