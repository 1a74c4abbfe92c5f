package object

import "testing"

func str(s string) *String { return &String{Value: s} }
func num(i int64) *Integer { return &Integer{Value: i} }
func flt(f float64) *Float { return &Float{Value: f} }

func mustSet(t *testing.T, tbl *Table, key, val Object) {
	t.Helper()
	if err := tbl.Set(key, val); err != nil {
		t.Fatalf("Set(%s) failed: %v", key.Inspect(), err)
	}
}

func TestDenseAppendAndBorder(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 5; i++ {
		mustSet(t, tbl, num(i), num(i*10))
	}
	if got := tbl.Len(); got != 5 {
		t.Fatalf("border = %d, want 5", got)
	}
	for i := int64(1); i <= 5; i++ {
		v, ok := tbl.GetInt(i).(*Integer)
		if !ok || v.Value != i*10 {
			t.Errorf("t[%d] = %s, want %d", i, tbl.GetInt(i).Inspect(), i*10)
		}
	}
	if tbl.HashLen() != 0 {
		t.Errorf("dense table should not touch the hash part, got %d entries", tbl.HashLen())
	}
}

func TestTailRemovalShrinksBorder(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 3; i++ {
		mustSet(t, tbl, num(i), num(i))
	}
	mustSet(t, tbl, num(3), NIL)
	if got := tbl.Len(); got != 2 {
		t.Errorf("border after tail removal = %d, want 2", got)
	}
	if !IsNil(tbl.GetInt(3)) {
		t.Errorf("t[3] should read nil after removal")
	}
}

func TestMidSequenceRemovalMigratesTail(t *testing.T) {
	tbl := NewTable()
	mustSet(t, tbl, num(1), str("a"))
	mustSet(t, tbl, num(2), str("b"))
	mustSet(t, tbl, num(3), str("c"))

	mustSet(t, tbl, num(2), NIL)

	if got := tbl.Len(); got != 1 {
		t.Errorf("border after mid removal = %d, want 1", got)
	}
	if v, ok := tbl.GetInt(1).(*String); !ok || v.Value != "a" {
		t.Errorf("t[1] = %s, want \"a\"", tbl.GetInt(1).Inspect())
	}
	if !IsNil(tbl.GetInt(2)) {
		t.Errorf("t[2] should read nil after removal")
	}
	// the tail entry survives, reachable by key, parked in the hash part
	if v, ok := tbl.GetInt(3).(*String); !ok || v.Value != "c" {
		t.Errorf("t[3] = %s, want \"c\"", tbl.GetInt(3).Inspect())
	}
	if tbl.HashLen() != 1 {
		t.Errorf("hash part should hold the migrated tail, got %d entries", tbl.HashLen())
	}
}

func TestBorderSetAbsorbsHashSuccessors(t *testing.T) {
	tbl := NewTable()
	mustSet(t, tbl, num(1), str("a"))
	mustSet(t, tbl, num(3), str("c"))
	mustSet(t, tbl, num(4), str("d"))
	if got := tbl.Len(); got != 1 {
		t.Fatalf("border before filling the gap = %d, want 1", got)
	}

	mustSet(t, tbl, num(2), str("b"))
	if got := tbl.Len(); got != 4 {
		t.Errorf("border after filling the gap = %d, want 4", got)
	}
	if tbl.HashLen() != 0 {
		t.Errorf("absorbed keys should leave the hash part, got %d entries", tbl.HashLen())
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		v, ok := tbl.GetInt(int64(i + 1)).(*String)
		if !ok || v.Value != want {
			t.Errorf("t[%d] = %s, want %q", i+1, tbl.GetInt(int64(i+1)).Inspect(), want)
		}
	}
}

func TestFloatKeyCollapsesToInteger(t *testing.T) {
	tbl := NewTable()
	mustSet(t, tbl, flt(2.0), str("two"))
	if v, ok := tbl.GetInt(2).(*String); !ok || v.Value != "two" {
		t.Errorf("t[2] = %s, want value written at t[2.0]", tbl.GetInt(2).Inspect())
	}
	mustSet(t, tbl, num(2), str("replaced"))
	if v, ok := tbl.Get(flt(2.0)).(*String); !ok || v.Value != "replaced" {
		t.Errorf("t[2.0] = %s, want \"replaced\"", tbl.Get(flt(2.0)).Inspect())
	}
}

func TestInvalidKeysRejected(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Set(NIL, str("x")); err == nil || err.Kind != InvalidKey {
		t.Errorf("nil key should fail with InvalidKey, got %v", err)
	}
}

func TestHashRemoval(t *testing.T) {
	tbl := NewTable()
	mustSet(t, tbl, str("k"), num(1))
	mustSet(t, tbl, str("k"), NIL)
	if !IsNil(tbl.Get(str("k"))) {
		t.Errorf("t.k should read nil after removal")
	}
	if tbl.HashLen() != 0 {
		t.Errorf("hash removal should delete the entry, got %d entries", tbl.HashLen())
	}
}

func TestNextVisitsEveryPair(t *testing.T) {
	tbl := NewTable()
	mustSet(t, tbl, num(1), str("a"))
	mustSet(t, tbl, num(2), str("b"))
	mustSet(t, tbl, str("x"), num(10))
	mustSet(t, tbl, str("y"), num(20))

	seen := map[string]bool{}
	key := Object(NIL)
	for {
		k, v, err := tbl.Next(key)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if IsNil(k) {
			break
		}
		if IsNil(v) {
			t.Errorf("Next yielded key %s with nil value", k.Inspect())
		}
		seen[k.Inspect()] = true
		key = k
	}
	for _, want := range []string{"1", "2", "x", "y"} {
		if !seen[want] {
			t.Errorf("traversal missed key %s", want)
		}
	}
	if len(seen) != 4 {
		t.Errorf("traversal visited %d keys, want 4", len(seen))
	}
}

func TestNextSurvivesClearingCurrentKey(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 3; i++ {
		mustSet(t, tbl, num(i), num(i*10))
	}
	mustSet(t, tbl, str("x"), num(40))
	mustSet(t, tbl, str("y"), num(50))

	// clearing the visited key is allowed during traversal
	visited := 0
	key := Object(NIL)
	for {
		k, _, err := tbl.Next(key)
		if err != nil {
			t.Fatalf("Next after clearing %s failed: %v", key.Inspect(), err)
		}
		if IsNil(k) {
			break
		}
		visited++
		mustSet(t, tbl, k, NIL)
		key = k
	}
	if visited != 5 {
		t.Errorf("traversal visited %d keys, want 5", visited)
	}
	if tbl.Len() != 0 || tbl.HashLen() != 0 {
		t.Errorf("table should be empty after the clearing walk, border %d, hash %d",
			tbl.Len(), tbl.HashLen())
	}
}

func TestNextResumesAfterMidSequenceClear(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 4; i++ {
		mustSet(t, tbl, num(i), num(i))
	}

	// clearing t[1] splits the dense segment; the migrated tail must
	// still come after the cleared key in traversal order
	mustSet(t, tbl, num(1), NIL)
	k, _, err := tbl.Next(num(1))
	if err != nil {
		t.Fatalf("Next(1) after clearing t[1] failed: %v", err)
	}
	if v, ok := k.(*Integer); !ok || v.Value != 2 {
		t.Errorf("Next(1) = %s, want 2", k.Inspect())
	}
}

func TestReinsertedKeyKeepsSingleTraversalSlot(t *testing.T) {
	tbl := NewTable()
	mustSet(t, tbl, str("x"), num(1))
	mustSet(t, tbl, str("y"), num(2))
	mustSet(t, tbl, str("x"), NIL)
	mustSet(t, tbl, str("x"), num(3))

	visited := 0
	key := Object(NIL)
	for {
		k, _, err := tbl.Next(key)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if IsNil(k) {
			break
		}
		visited++
		key = k
	}
	if visited != 2 {
		t.Errorf("traversal visited %d keys, want 2", visited)
	}
}

func TestNextOnEmptyTable(t *testing.T) {
	tbl := NewTable()
	k, _, err := tbl.Next(NIL)
	if err != nil {
		t.Fatalf("Next on empty table failed: %v", err)
	}
	if !IsNil(k) {
		t.Errorf("Next on empty table should yield nil, got %s", k.Inspect())
	}
}
