package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips combining marks and case so "Eléctrico", "ELECTRICO" and
// "electrico" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// Filter narrows ListPokemon. Empty fields do not filter.
type Filter struct {
	Name string // substring of nombre
	Type string // exact element of tipos
}

func (f Filter) matcher() func(Pokemon) bool {
	name, typ := Fold(f.Name), Fold(f.Type)
	return func(p Pokemon) bool {
		if f.Name != "" && !strings.Contains(Fold(p.Nombre), name) {
			return false
		}
		if f.Type != "" {
			for _, t := range p.Tipos {
				if Fold(t) == typ {
					return true
				}
			}
			return false
		}
		return true
	}
}
