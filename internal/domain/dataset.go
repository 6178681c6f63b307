package domain

// Dataset is the immutable record store: the header columns it was loaded
// with plus its records. Derivations return new Datasets that share the column
// set; nothing writes to the record slice after construction.
type Dataset struct {
	columns map[string]struct{}
	order   []string
	records []PumpRecord
}

// NewDataset builds a Dataset from a header and records. The records slice is
// copied so later writes by the caller cannot leak in.
func NewDataset(columns []string, records []PumpRecord) Dataset {
	set := make(map[string]struct{}, len(columns))
	order := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, dup := set[c]; dup {
			continue
		}
		set[c] = struct{}{}
		order = append(order, c)
	}
	recs := make([]PumpRecord, len(records))
	copy(recs, records)
	return Dataset{columns: set, order: order, records: recs}
}

// derive returns a dataset with the same header and the given records.
func (d Dataset) derive(records []PumpRecord) Dataset {
	return Dataset{columns: d.columns, order: d.order, records: records}
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d.records) }

// Columns returns the header in load order.
func (d Dataset) Columns() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// HasColumn reports whether the header contains name.
func (d Dataset) HasColumn(name string) bool {
	_, ok := d.columns[name]
	return ok
}

// Records returns a copy of the records.
func (d Dataset) Records() []PumpRecord {
	out := make([]PumpRecord, len(d.records))
	copy(out, d.records)
	return out
}

// Each calls fn for every record in order without copying the slice.
func (d Dataset) Each(fn func(PumpRecord)) {
	for _, r := range d.records {
		fn(r)
	}
}

// Lookup returns the first record with the given id.
func (d Dataset) Lookup(id string) (PumpRecord, bool) {
	for _, r := range d.records {
		if r.ID == id {
			return r, true
		}
	}
	return PumpRecord{}, false
}

// requireColumns fails with a SchemaError naming the first absent column.
func (d Dataset) requireColumns(columns ...string) error {
	for _, c := range columns {
		if !d.HasColumn(c) {
			return &SchemaError{Column: c, Reason: "column not present in dataset"}
		}
	}
	return nil
}

// Index builds an id lookup table. Later duplicates do not replace earlier rows.
func (d Dataset) Index() map[string]PumpRecord {
	idx := make(map[string]PumpRecord, len(d.records))
	for _, r := range d.records {
		if _, ok := idx[r.ID]; !ok {
			idx[r.ID] = r
		}
	}
	return idx
}
