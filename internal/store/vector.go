package store

import (
	"database/sql/driver"

	"github.com/pgvector/pgvector-go"
)

// vector adapts an embedding to a nullable pgvector column. An empty
// embedding is written as NULL and NULL scans back as nil.
type vector []float32

func (v vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return pgvector.NewVector(v).Value()
}

func (v *vector) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}
	var pv pgvector.Vector
	if err := pv.Scan(src); err != nil {
		return err
	}
	*v = pv.Slice()
	return nil
}
