package idgen_test

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/artpar/bundlekeeper/adapters/idgen"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV4.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v4 format", id)
	}
}

func TestUUID_Prefix(t *testing.T) {
	id := idgen.UUID{Prefix: "run_"}.New()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("ID %s missing prefix", id)
	}
	if !uuidV4.MatchString(strings.TrimPrefix(id, "run_")) {
		t.Errorf("ID %s doesn't carry a UUID v4", id)
	}
}

func TestUUID_New_Unique(t *testing.T) {
	g := idgen.UUID{}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("test_")

	if id := g.New(); id != "test_1" {
		t.Errorf("first ID = %s, want test_1", id)
	}
	if id := g.New(); id != "test_2" {
		t.Errorf("second ID = %s, want test_2", id)
	}

	g.Reset()
	if id := g.New(); id != "test_1" {
		t.Errorf("ID after reset = %s, want test_1", id)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := g.New()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1000 {
		t.Errorf("unique IDs = %d, want 1000", len(seen))
	}
}
