package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/ASHISH26940/pokedex/internal/store"
)

const maxBodyBytes = 1 << 20

var errBadJSON = store.InvalidInputf("invalid JSON body")

// readBody returns the request body, or nil for an empty one.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, store.InvalidInputf("could not read request body")
	}
	return bytes.TrimSpace(body), nil
}

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded"
}

// regionField reads a single string field from a JSON or form-encoded body.
// A missing field yields "".
func regionField(w http.ResponseWriter, r *http.Request, field string) (string, error) {
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return "", store.InvalidInputf("invalid form body")
		}
		return r.PostForm.Get(field), nil
	}

	body, err := readBody(w, r)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", errBadJSON
	}
	raw, ok := fields[field]
	if !ok || isNull(raw) {
		return "", nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", store.InvalidInputf("%s must be a string", field)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// pokemonBody is one record of a create request before validation.
type pokemonBody struct {
	ID     json.RawMessage `json:"id"`
	Nombre json.RawMessage `json:"nombre"`
	Tipos  json.RawMessage `json:"tipos"`
}

// createRequest is either a single record or an array of records. Batch
// remembers which, so the response can mirror the request.
type createRequest struct {
	Batch bool
	Items []pokemonBody
}

func (c *createRequest) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty body")
	}
	switch data[0] {
	case '[':
		c.Batch = true
		return json.Unmarshal(data, &c.Items)
	case '{':
		var one pokemonBody
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		c.Batch = false
		c.Items = []pokemonBody{one}
		return nil
	default:
		return errors.New("expected an object or an array")
	}
}

func decodeCreate(w http.ResponseWriter, r *http.Request) (createRequest, []store.NewPokemon, error) {
	var req createRequest
	body, err := readBody(w, r)
	if err != nil {
		return req, nil, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, nil, errBadJSON
	}

	batch := make([]store.NewPokemon, 0, len(req.Items))
	for _, item := range req.Items {
		id, err := parseBodyID(item.ID)
		if err != nil {
			return req, nil, err
		}
		var nombre string
		if !isNull(item.Nombre) {
			// A non-string nombre counts as missing; the store rejects it.
			if err := json.Unmarshal(item.Nombre, &nombre); err != nil {
				nombre = ""
			}
		}
		batch = append(batch, store.NewPokemon{
			ID:     id,
			Nombre: nombre,
			Tipos:  parseTipos(item.Tipos),
		})
	}
	return req, batch, nil
}

// parseBodyID accepts a JSON integer or a numeric string. A missing id is
// returned as 0 so the store reports it as a missing field.
func parseBodyID(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		n, err := strconv.Atoi(num.String())
		if err != nil {
			return 0, store.InvalidInputf("id must be an integer")
		}
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
	}
	return 0, store.InvalidInputf("id must be an integer")
}

// parseTipos returns the list only when raw is an array of strings.
func parseTipos(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var tipos []string
	if err := json.Unmarshal(raw, &tipos); err != nil {
		return nil
	}
	return tipos
}

type updateBody struct {
	Nombre json.RawMessage `json:"nombre"`
	Tipos  json.RawMessage `json:"tipos"`
}

func decodePatch(w http.ResponseWriter, r *http.Request) (store.PokemonPatch, error) {
	var patch store.PokemonPatch
	body, err := readBody(w, r)
	if err != nil {
		return patch, err
	}
	if len(body) == 0 {
		return patch, nil
	}
	var in updateBody
	if err := json.Unmarshal(body, &in); err != nil {
		return patch, errBadJSON
	}
	// A non-string nombre is ignored like a malformed tipos.
	var nombre string
	if !isNull(in.Nombre) && json.Unmarshal(in.Nombre, &nombre) == nil {
		patch.Nombre = &nombre
	}
	patch.Tipos = parseTipos(in.Tipos)
	return patch, nil
}
