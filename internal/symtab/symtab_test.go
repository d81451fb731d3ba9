package symtab

import "testing"

func TestSetAndSnapshot(t *testing.T) {
	tab := New()
	tab.Set('z', 4)

	view := tab.Snapshot()
	if got := view.Get('z'); got != 4 {
		t.Fatalf("Get('z') = %d, want 4", got)
	}
	if !view.Has('z') {
		t.Fatal("Has('z') = false, want true")
	}
	if view.Has('y') {
		t.Fatal("Has('y') = true, want false")
	}
}

func TestSnapshotIsIndependentOfLaterWrites(t *testing.T) {
	tab := New()
	tab.Set('z', 4)
	view := tab.Snapshot()

	tab.Set('z', 9)

	if got := view.Get('z'); got != 4 {
		t.Fatalf("Get('z') after later Set = %d, want unchanged 4", got)
	}
	if got := tab.Snapshot().Get('z'); got != 9 {
		t.Fatalf("fresh Snapshot().Get('z') = %d, want 9", got)
	}
}

func TestUpdateReplacesMultipleValues(t *testing.T) {
	tab := New()
	tab.Set('z', 1)
	tab.Update(map[byte]int{'z': 2, 'y': 3})

	view := tab.Snapshot()
	if got := view.Get('z'); got != 2 {
		t.Fatalf("Get('z') = %d, want 2", got)
	}
	if got := view.Get('y'); got != 3 {
		t.Fatalf("Get('y') = %d, want 3", got)
	}
}

func TestGetPanicsOnUnknownSymbol(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Get on unknown symbol did not panic")
		}
	}()
	New().Snapshot().Get('q')
}
