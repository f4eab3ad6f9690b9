package query

import (
	"fmt"

	"github.com/tabular-io/tabular-engine/pkg/schema"
)

// ResolveReadRelations resolves the relation work for a single-record read:
// inline joins for one-to-one relations plus independent sub-queries for
// optional and collection relations. Self-referential relations never take
// the generic paths.
func ResolveReadRelations(s *schema.Schema) ([]Join, []RelationQuery) {
	joins := oneToOneJoins(s)

	var subs []RelationQuery
	subs = append(subs, relationQueries(s, schema.OneToZero, true)...)
	subs = append(subs, relationQueries(s, schema.OneToMany, false)...)
	subs = append(subs, relationQueries(s, schema.ManyToMany, false)...)
	return joins, subs
}

// ResolveSearchJoins resolves the joins a filtered search needs and returns
// the filter set with self-referential keys rewritten. The input map is not
// modified. Joins for many-to-many and inbound one-to-many relations are
// demand-driven: one is added only when the filter already references the
// relation's local key, so unused relations never inflate result
// cardinality.
func ResolveSearchJoins(s *schema.Schema, filter map[string]any) ([]Join, map[string]any) {
	rewritten := make(map[string]any, len(filter))
	for k, v := range filter {
		rewritten[k] = v
	}

	joins := oneToOneJoins(s)

	for _, nr := range s.RelationsOf(schema.ManyToMany) {
		if s.SelfReferential(nr.Relation) {
			continue
		}
		if j, ok := demandJoin(nr, rewritten); ok {
			joins = append(joins, j)
		}
	}
	for _, c := range []schema.Cardinality{schema.OneToMany, schema.ManyToMany} {
		for _, nr := range s.ReverseRelationsOf(c) {
			if s.SelfReferential(nr.Relation) {
				continue
			}
			if j, ok := demandJoin(nr, rewritten); ok {
				joins = append(joins, j)
			}
		}
	}

	// Self-referential relations, regardless of cardinality: one explicit
	// ON join, triggered by a filter on the relation's declared name. The
	// filter entry is rewritten to the relation's local key.
	for _, c := range schema.Cardinalities {
		for _, nr := range s.RelationsOf(c) {
			if !s.SelfReferential(nr.Relation) {
				continue
			}
			v, ok := rewritten[nr.Name]
			if !ok {
				continue
			}
			delete(rewritten, nr.Name)
			rewritten[nr.LocalKey] = v
			joins = append(joins, selfJoin(s, nr))
		}
	}

	return joins, rewritten
}

// oneToOneJoins builds the two-step inner joins that reconstruct a single
// associated record inline: the join table USING the local key, then the
// related table USING the foreign key.
func oneToOneJoins(s *schema.Schema) []Join {
	var joins []Join
	for _, nr := range s.RelationsOf(schema.OneToOne) {
		if s.SelfReferential(nr.Relation) {
			continue
		}
		joins = append(joins, Join{Table: nr.Name, Kind: JoinUsing, Column: nr.LocalKey})
		if nr.RelatedEntity != nr.Name {
			joins = append(joins, Join{Table: nr.RelatedEntity, Kind: JoinUsing, Column: nr.ForeignKey})
		}
	}
	return joins
}

// demandJoin returns the join for a collection relation when the filter
// references its local key. Pure over the filter set.
func demandJoin(nr schema.NamedRelation, filter map[string]any) (Join, bool) {
	if _, ok := filter[nr.LocalKey]; !ok {
		return Join{}, false
	}
	return Join{Table: nr.Name, Kind: JoinUsing, Column: nr.ForeignKey}, true
}

// selfJoin renders the explicit equality condition between the relation's
// local and foreign key. A USING join is never emitted here: both sides are
// the same table and share every column name.
func selfJoin(s *schema.Schema, nr schema.NamedRelation) Join {
	return Join{
		Table:     nr.Name,
		Kind:      JoinOn,
		Condition: fmt.Sprintf("%s.%s = %s.%s", nr.Name, nr.LocalKey, s.Name, nr.ForeignKey),
	}
}

func relationQueries(s *schema.Schema, c schema.Cardinality, single bool) []RelationQuery {
	var out []RelationQuery
	for _, nr := range s.RelationsOf(c) {
		if s.SelfReferential(nr.Relation) {
			continue
		}
		rq := RelationQuery{
			Name:      nr.Name,
			Table:     nr.Name,
			FilterKey: nr.ForeignKey,
			Single:    single,
		}
		if nr.RelatedEntity != nr.Name {
			rq.Join = &Join{Table: nr.RelatedEntity, Kind: JoinUsing, Column: nr.LocalKey}
		}
		out = append(out, rq)
	}
	return out
}
