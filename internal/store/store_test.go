package store

import (
	"sync"
	"testing"
)

func TestSetNotifiesSubscribers(t *testing.T) {
	st := New()

	var got []int
	st.Subscribe(KeyZStack, func(key Key, value any) {
		got = append(got, value.(int))
	})

	st.Set(KeyZStack, 3)
	st.Set(KeyZStack, 7)

	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("expected [3 7], got %v", got)
	}
}

func TestSubscribeOtherKeyNotNotified(t *testing.T) {
	st := New()

	calls := 0
	st.Subscribe(KeyZStack, func(Key, any) { calls++ })

	st.Set(KeyFlipX, true)
	if calls != 0 {
		t.Fatalf("expected no calls for unrelated key, got %d", calls)
	}
}

func TestUnsubscribe(t *testing.T) {
	st := New()

	calls := 0
	unsub := st.Subscribe(KeyZStack, func(Key, any) { calls++ })
	st.Set(KeyZStack, 1)
	unsub()
	st.Set(KeyZStack, 2)

	if calls != 1 {
		t.Fatalf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestNotificationOrder(t *testing.T) {
	st := New()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		st.Subscribe(KeyZStack, func(Key, any) { order = append(order, i) })
	}
	st.Set(KeyZStack, 0)

	for i, v := range order {
		if v != i {
			t.Fatalf("expected registration order, got %v", order)
		}
	}
}

func TestReentrantSetFromCallback(t *testing.T) {
	st := New()

	// A subscriber writing back into the store must not deadlock; this
	// is the pattern controllers use to derive state.
	st.Subscribe(KeyZStack, func(_ Key, value any) {
		if value.(int) == 1 {
			st.Set(KeyVariant, "derived")
		}
	})
	st.Set(KeyZStack, 1)

	if got := st.String(KeyVariant, ""); got != "derived" {
		t.Fatalf("expected derived write to land, got %q", got)
	}
}

func TestTypedGetters(t *testing.T) {
	st := New()
	st.Set(KeyShowBoundaries, true)
	st.Set(KeyZStack, 4)
	st.Set(KeyBoundaryOpacity, 0.5)
	st.Set(KeyVariant, "main")
	st.Set(KeySelectedGenes, []string{"Gad1", "Slc17a7"})

	if !st.Bool(KeyShowBoundaries, false) {
		t.Error("Bool lost value")
	}
	if st.Int(KeyZStack, -1) != 4 {
		t.Error("Int lost value")
	}
	if st.Float(KeyBoundaryOpacity, 0) != 0.5 {
		t.Error("Float lost value")
	}
	if st.String(KeyVariant, "") != "main" {
		t.Error("String lost value")
	}
	if genes := st.Strings(KeySelectedGenes); len(genes) != 2 {
		t.Errorf("Strings lost value: %v", genes)
	}

	// Defaults apply on absent keys and type mismatches.
	if st.Int(KeyNucleiOpacity, 9) != 9 {
		t.Error("expected default for absent key")
	}
	st.Set(KeyZStack, "not an int")
	if st.Int(KeyZStack, 2) != 2 {
		t.Error("expected default on type mismatch")
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := New()
	st.Subscribe(KeyZStack, func(Key, any) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.Set(KeyZStack, i*100+j)
				st.Int(KeyZStack, 0)
			}
		}(i)
	}
	wg.Wait()
}
