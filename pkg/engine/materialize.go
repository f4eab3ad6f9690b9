package engine

import (
	"github.com/tabular-io/tabular-engine/pkg/jsonutil"
	"github.com/tabular-io/tabular-engine/pkg/storage"
)

// materialize post-processes a raw row for callers: every declared JSON
// field decodes to a structured value, with an empty structure substituted
// when the stored value is absent or empty. Callers never see nil for a
// declared JSON field. Relation results were already attached under their
// logical names by the read path.
func (s *service) materialize(rec storage.Record) storage.Record {
	if rec == nil {
		return nil
	}
	for _, f := range s.schema.JSONFields {
		rec[f] = jsonutil.DecodeValue(rec[f])
	}
	return rec
}
