package object

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// MapKey is the normalized form of a table key. Value holds int64, float64,
// string, bool or a reference-type Object, all of which compare correctly
// as Go map keys.
type MapKey struct {
	Type  ObjectType
	Value interface{}
}

type MapPair struct {
	Key   Object
	Value Object
}

// Table owns a dense 1-based array segment and a sparse hash segment.
// Assignment copies the handle, never the contents.
type Table struct {
	Array []Object
	Hash  map[MapKey]MapPair
	Meta  *Table

	// order keeps hash keys in insertion order so Next has a stable
	// traversal across suspensions. A removed key keeps its slot, with
	// no Hash entry, so Next can resume from a key that was cleared
	// mid-traversal.
	order    []MapKey
	orderPos map[MapKey]int
}

func NewTable() *Table {
	return &Table{Hash: make(map[MapKey]MapPair)}
}

func (t *Table) Type() ObjectType { return TABLE_OBJ }
func (t *Table) Inspect() string {
	var out bytes.Buffer
	out.WriteString("{")
	parts := []string{}
	for _, v := range t.Array {
		parts = append(parts, v.Inspect())
	}
	for _, mk := range t.order {
		pair, ok := t.Hash[mk]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s = %s", pair.Key.Inspect(), pair.Value.Inspect()))
	}
	out.WriteString(strings.Join(parts, ", "))
	out.WriteString("}")
	return out.String()
}

// NormalizeKey maps a key value to its canonical MapKey. Float keys with an
// integral value collapse to the equivalent integer key; nil and NaN keys
// are invalid.
func NormalizeKey(key Object) (MapKey, *RuntimeError) {
	switch k := key.(type) {
	case *Nil:
		return MapKey{}, NewError(InvalidKey, "table index is nil")
	case *Integer:
		return MapKey{Type: INTEGER_OBJ, Value: k.Value}, nil
	case *Float:
		if math.IsNaN(k.Value) {
			return MapKey{}, NewError(InvalidKey, "table index is NaN")
		}
		if i := int64(k.Value); float64(i) == k.Value {
			return MapKey{Type: INTEGER_OBJ, Value: i}, nil
		}
		return MapKey{Type: FLOAT_OBJ, Value: k.Value}, nil
	case *Boolean:
		return MapKey{Type: BOOLEAN_OBJ, Value: k.Value}, nil
	case *String:
		return MapKey{Type: STRING_OBJ, Value: k.Value}, nil
	}
	// reference types key by identity
	return MapKey{Type: key.Type(), Value: key}, nil
}

// Get returns the value stored at key, or nil for absent keys. Reads never
// raise, including nil and NaN keys.
func (t *Table) Get(key Object) Object {
	mk, err := NormalizeKey(key)
	if err != nil {
		return NIL
	}
	if i, ok := mk.Value.(int64); ok && mk.Type == INTEGER_OBJ {
		if i >= 1 && i <= int64(len(t.Array)) {
			return t.Array[i-1]
		}
	}
	if pair, ok := t.Hash[mk]; ok {
		return pair.Value
	}
	return NIL
}

// GetInt is Get for integer keys without boxing.
func (t *Table) GetInt(i int64) Object {
	if i >= 1 && i <= int64(len(t.Array)) {
		return t.Array[i-1]
	}
	if pair, ok := t.Hash[MapKey{Type: INTEGER_OBJ, Value: i}]; ok {
		return pair.Value
	}
	return NIL
}

// Set stores key -> value. Storing nil removes: a cleared tail slot trims
// the array segment, a cleared middle slot truncates the segment there and
// migrates the tail into the hash segment, and hash keys are deleted rather
// than stored as nil.
func (t *Table) Set(key, value Object) *RuntimeError {
	mk, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	return t.setNormalized(mk, key, value)
}

// SetInt is Set for integer keys without boxing.
func (t *Table) SetInt(i int64, value Object) {
	t.setNormalized(MapKey{Type: INTEGER_OBJ, Value: i}, &Integer{Value: i}, value)
}

// Append stores value at the current border + 1.
func (t *Table) Append(value Object) {
	t.SetInt(int64(len(t.Array))+1, value)
}

func (t *Table) setNormalized(mk MapKey, key, value Object) *RuntimeError {
	if i, ok := mk.Value.(int64); ok && mk.Type == INTEGER_OBJ {
		n := int64(len(t.Array))
		switch {
		case i >= 1 && i <= n:
			if IsNil(value) {
				// cleared dense keys go to the front of the traversal
				// order: the dense segment walks before the hash part,
				// so Next from a cleared slot must still reach every
				// older hash key
				if i == n {
					t.Array = t.Array[:n-1]
					t.prependOrder([]MapKey{mk})
				} else {
					// split: tail of the dense segment moves to the hash part
					if t.Hash == nil {
						t.Hash = make(map[MapKey]MapPair)
					}
					moved := []MapKey{mk}
					for j := i + 1; j <= n; j++ {
						jk := MapKey{Type: INTEGER_OBJ, Value: j}
						t.Hash[jk] = MapPair{Key: &Integer{Value: j}, Value: t.Array[j-1]}
						moved = append(moved, jk)
					}
					t.Array = t.Array[:i-1]
					t.prependOrder(moved)
				}
				return nil
			}
			t.Array[i-1] = value
			return nil
		case i == n+1:
			if IsNil(value) {
				t.hashDelete(mk)
				return nil
			}
			t.Array = append(t.Array, value)
			// absorb any successors parked in the hash segment
			for {
				next := MapKey{Type: INTEGER_OBJ, Value: int64(len(t.Array)) + 1}
				pair, ok := t.Hash[next]
				if !ok {
					break
				}
				t.Array = append(t.Array, pair.Value)
				t.hashDelete(next)
			}
			return nil
		}
	}
	if IsNil(value) {
		t.hashDelete(mk)
		return nil
	}
	t.hashSet(mk, key, value)
	return nil
}

func (t *Table) hashSet(mk MapKey, key, value Object) {
	if t.Hash == nil {
		t.Hash = make(map[MapKey]MapPair)
	}
	t.reserveOrder(mk)
	t.Hash[mk] = MapPair{Key: key, Value: value}
}

// hashDelete clears the stored value but keeps the key's traversal slot:
// clearing the current key during a pairs walk must not break Next.
func (t *Table) hashDelete(mk MapKey) {
	delete(t.Hash, mk)
}

// reserveOrder gives mk a stable traversal position. A key keeps its slot
// across removal and re-insertion.
func (t *Table) reserveOrder(mk MapKey) {
	if _, seen := t.orderPos[mk]; seen {
		return
	}
	if t.orderPos == nil {
		t.orderPos = make(map[MapKey]int)
	}
	t.orderPos[mk] = len(t.order)
	t.order = append(t.order, mk)
}

// prependOrder moves keys to the front of the traversal order, in the
// given sequence, and renumbers the rest. In-flight cursors hold keys,
// not positions, so renumbering is safe between Next calls.
func (t *Table) prependOrder(keys []MapKey) {
	moved := make(map[MapKey]bool, len(keys))
	for _, k := range keys {
		moved[k] = true
	}
	merged := append([]MapKey{}, keys...)
	for _, k := range t.order {
		if !moved[k] {
			merged = append(merged, k)
		}
	}
	t.order = merged
	t.orderPos = make(map[MapKey]int, len(merged))
	for i, k := range merged {
		t.orderPos[k] = i
	}
}

// Len returns the border of the dense segment.
func (t *Table) Len() int64 {
	return int64(len(t.Array))
}

// HashLen returns the number of entries in the sparse segment.
func (t *Table) HashLen() int {
	return len(t.Hash)
}

// Next supports stateless iteration: given the previous key (nil to start)
// it returns the next key/value pair, or nil, nil at the end. The dense
// segment is traversed first, then the hash segment in insertion order.
func (t *Table) Next(key Object) (Object, Object, *RuntimeError) {
	if IsNil(key) {
		if len(t.Array) > 0 {
			return &Integer{Value: 1}, t.Array[0], nil
		}
		return t.nextLive(0)
	}
	mk, err := NormalizeKey(key)
	if err != nil {
		return nil, nil, NewError(InvalidKey, "invalid key to 'next'")
	}
	if i, ok := mk.Value.(int64); ok && mk.Type == INTEGER_OBJ && i >= 1 && i <= int64(len(t.Array)) {
		if i < int64(len(t.Array)) {
			return &Integer{Value: i + 1}, t.Array[i], nil
		}
		return t.nextLive(0)
	}
	if idx, ok := t.orderPos[mk]; ok {
		return t.nextLive(idx + 1)
	}
	return nil, nil, NewError(InvalidKey, "invalid key to 'next'")
}

// nextLive returns the first hash pair at or after order position idx,
// skipping slots whose key has been removed.
func (t *Table) nextLive(idx int) (Object, Object, *RuntimeError) {
	for ; idx < len(t.order); idx++ {
		if pair, ok := t.Hash[t.order[idx]]; ok {
			return pair.Key, pair.Value, nil
		}
	}
	return NIL, NIL, nil
}
