package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Pokemon is a single entry of a region's list.
type Pokemon struct {
	ID     int      `json:"id"`
	Nombre string   `json:"nombre"`
	Tipos  []string `json:"tipos"`
	Region string   `json:"region"` // copy of the owning region's id
}

func (p Pokemon) clone() Pokemon {
	tipos := make([]string, len(p.Tipos))
	copy(tipos, p.Tipos)
	p.Tipos = tipos
	return p
}

func cloneList(list []Pokemon) []Pokemon {
	out := make([]Pokemon, len(list))
	for i, p := range list {
		out[i] = p.clone()
	}
	return out
}

// Document maps region ids to their pokemon lists. Unlike a Go map it keeps
// its keys in insertion order so the JSON file is stable between writes.
type Document struct {
	order []string
	lists map[string][]Pokemon
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{lists: make(map[string][]Pokemon)}
}

// Keys returns the region ids in storage order. It is never nil.
func (d *Document) Keys() []string {
	return append([]string{}, d.order...)
}

// Len returns the number of regions.
func (d *Document) Len() int {
	return len(d.order)
}

// Get returns the list stored under id.
func (d *Document) Get(id string) ([]Pokemon, bool) {
	list, ok := d.lists[id]
	return list, ok
}

// Has reports whether id is a region of the document.
func (d *Document) Has(id string) bool {
	_, ok := d.lists[id]
	return ok
}

// Set stores list under id, appending id to the key order when it is new.
func (d *Document) Set(id string, list []Pokemon) {
	if list == nil {
		list = []Pokemon{}
	}
	if _, ok := d.lists[id]; !ok {
		d.order = append(d.order, id)
	}
	d.lists[id] = list
}

// Delete removes id and returns its former position, or -1 if absent.
func (d *Document) Delete(id string) int {
	if _, ok := d.lists[id]; !ok {
		return -1
	}
	delete(d.lists, id)
	idx := slices.Index(d.order, id)
	d.order = slices.Delete(d.order, idx, idx+1)
	return idx
}

// insertAt places id at position idx of the key order. It is used to undo a
// Delete.
func (d *Document) insertAt(idx int, id string, list []Pokemon) {
	if _, ok := d.lists[id]; ok {
		d.lists[id] = list
		return
	}
	if idx < 0 || idx > len(d.order) {
		idx = len(d.order)
	}
	d.order = slices.Insert(d.order, idx, id)
	d.lists[id] = list
}

// Rename moves the list stored under oldID to newID, keeping its position.
// newID must not exist.
func (d *Document) Rename(oldID, newID string) bool {
	list, ok := d.lists[oldID]
	if !ok || d.Has(newID) {
		return false
	}
	idx := slices.Index(d.order, oldID)
	d.order[idx] = newID
	delete(d.lists, oldID)
	d.lists[newID] = list
	return true
}

// MarshalJSON writes the document as a JSON object in key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range d.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		list := d.lists[id]
		if list == nil {
			list = []Pokemon{}
		}
		val, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of region id to pokemon array, recording
// the order in which keys appear. A repeated key keeps its first position and
// its last value.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("document: expected object, got %v", tok)
	}

	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("document: expected region key, got %v", tok)
		}
		var list []Pokemon
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("document: region %q: %w", key, err)
		}
		doc.Set(key, list)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = *doc
	return nil
}
