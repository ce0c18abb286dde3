package workflow

import (
	"fmt"
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// engine semantics at the coordination level:
// - retried submissions with a dedup key are applied once
// - per-fixture serialization prevents racey interleavings inside the kernel
// - a lot either applies all of its units or none of them
//
// Full MySQL+Redis coverage lives in the dockerized regression tests.

type fakeEngine struct {
	muByFixture map[string]*sync.Mutex
	mu          sync.Mutex
	seen        map[string]int
	nextTxId    int
	inStock     map[string]bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		muByFixture: map[string]*sync.Mutex{},
		seen:        map[string]int{},
		inStock:     map[string]bool{},
	}
}

// submit mirrors the kernel's shape: serialize per (customer, fixture),
// honor the dedup key, validate every serial, then apply all or nothing.
func (e *fakeEngine) submit(customerId string, fixtureId int, dedupKey string, serials []string) (int, error) {
	scope := fmt.Sprintf("%s:%d", customerId, fixtureId)
	e.mu.Lock()
	fm := e.muByFixture[scope]
	if fm == nil {
		fm = &sync.Mutex{}
		e.muByFixture[scope] = fm
	}
	e.mu.Unlock()

	fm.Lock()
	defer fm.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if dedupKey != "" {
		if txId, ok := e.seen[scope+"|"+dedupKey]; ok {
			return txId, nil
		}
	}

	// Validate the whole lot before mutating anything.
	for _, s := range serials {
		if e.inStock[scope+"|"+s] {
			return 0, fmt.Errorf("%w: serial %q", ErrSerialAlreadyInStock, s)
		}
	}

	e.nextTxId++
	for _, s := range serials {
		e.inStock[scope+"|"+s] = true
	}
	if dedupKey != "" {
		e.seen[scope+"|"+dedupKey] = e.nextTxId
	}
	return e.nextTxId, nil
}

func (e *fakeEngine) stockCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, v := range e.inStock {
		if v {
			n++
		}
	}
	return n
}

func TestDuplicateSubmission_AppliedOnce(t *testing.T) {
	e := newFakeEngine()

	var wg sync.WaitGroup
	txIds := make([]int, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txId, err := e.submit("cust-1", 7, "msg-123", []string{"A01", "A02"})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			txIds[i] = txId
		}(i)
	}
	wg.Wait()

	if got := e.stockCount(); got != 2 {
		t.Fatalf("expected 2 units in stock after 25 duplicate deliveries, got %d", got)
	}
	for i := 1; i < len(txIds); i++ {
		if txIds[i] != txIds[0] {
			t.Fatalf("all retries should observe the same tx id: %v", txIds)
		}
	}
}

func TestConcurrentOverlappingLots_ExactlyOneWins(t *testing.T) {
	e := newFakeEngine()

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount, conflictCount := 0, 0
	// Both lots claim A05; without a dedup key exactly one may succeed.
	lots := [][]string{
		{"A01", "A02", "A05"},
		{"A05", "A06", "A07"},
	}
	for _, lot := range lots {
		wg.Add(1)
		go func(lot []string) {
			defer wg.Done()
			_, err := e.submit("cust-1", 7, "", lot)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				okCount++
			} else if IsStateConflict(err) {
				conflictCount++
			} else {
				t.Errorf("unexpected error class: %v", err)
			}
		}(lot)
	}
	wg.Wait()

	if okCount != 1 || conflictCount != 1 {
		t.Fatalf("expected exactly one winner and one conflict, got %d/%d", okCount, conflictCount)
	}
	if got := e.stockCount(); got != 3 {
		t.Fatalf("the losing lot must leave no partial state; expected 3 units, got %d", got)
	}
}

func TestFailedLot_LeavesNoPartialState(t *testing.T) {
	e := newFakeEngine()

	if _, err := e.submit("cust-1", 7, "", []string{"B01"}); err != nil {
		t.Fatalf("seed receipt failed: %v", err)
	}

	// B02 is fresh but B01 collides; the entire lot must be rejected.
	_, err := e.submit("cust-1", 7, "", []string{"B02", "B01"})
	if err == nil {
		t.Fatal("expected a state conflict")
	}
	if got := e.stockCount(); got != 1 {
		t.Fatalf("expected only the seeded unit in stock, got %d", got)
	}
}

func TestTenantsDoNotShareSerialSpace(t *testing.T) {
	e := newFakeEngine()

	if _, err := e.submit("cust-1", 7, "", []string{"C01"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same fixture id and serial under another customer is a distinct unit.
	if _, err := e.submit("cust-2", 7, "", []string{"C01"}); err != nil {
		t.Fatalf("serials must be scoped per customer: %v", err)
	}
}
