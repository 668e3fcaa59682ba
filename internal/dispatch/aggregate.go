package dispatch

import (
	"fmt"
)

// Aggregate collects outcomes into a ResultTable holding exactly one entry
// per requested key. The first failed outcome fails the whole aggregation.
func Aggregate(requested []Key, outcomes []Outcome) (*ResultTable, error) {
	want := make(map[Key]bool, len(requested))
	for _, k := range requested {
		want[k] = true
	}

	table := NewResultTable(len(want))
	for _, o := range outcomes {
		if o.Err != nil {
			return nil, o.Err
		}
		if !want[o.Key] {
			return nil, fmt.Errorf("unexpected result for key %s", o.Key)
		}
		if err := table.Put(o.Key, o.Solution); err != nil {
			return nil, err
		}
	}

	if table.Len() != len(want) {
		for _, k := range requested {
			if _, ok := table.Get(k); !ok {
				return nil, fmt.Errorf("missing result for key %s (%d of %d collected)", k, table.Len(), len(want))
			}
		}
	}
	return table, nil
}
