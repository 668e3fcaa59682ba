package dispatch

import (
	"fmt"

	"partsim/internal/partition"
)

// Key addresses one evaluation: the zero-based workload index and the
// position of the algorithm in the requested list.
type Key struct {
	Workload  int `json:"workload"`
	Algorithm int `json:"algorithm"`
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d)", k.Workload, k.Algorithm)
}

// ResultTable maps keys to solutions. Entries are written once.
type ResultTable struct {
	entries map[Key]*partition.Solution
}

func NewResultTable(capacity int) *ResultTable {
	return &ResultTable{entries: make(map[Key]*partition.Solution, capacity)}
}

// Put stores a solution, refusing to overwrite an existing entry.
func (t *ResultTable) Put(k Key, sol *partition.Solution) error {
	if sol == nil {
		return fmt.Errorf("nil solution for key %s", k)
	}
	if _, exists := t.entries[k]; exists {
		return fmt.Errorf("duplicate result for key %s", k)
	}
	t.entries[k] = sol
	return nil
}

func (t *ResultTable) Get(k Key) (*partition.Solution, bool) {
	sol, ok := t.entries[k]
	return sol, ok
}

func (t *ResultTable) Len() int {
	return len(t.entries)
}
