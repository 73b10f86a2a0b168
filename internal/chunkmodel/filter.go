package chunkmodel

// FilterKind governs how the planner may route a clause.
type FilterKind int

const (
	// Must requires the clause to end up in either the pre- or post-filter
	// partition; it can never be dropped.
	Must FilterKind = iota
	// PreferPre asks the planner to push down when the index supports it,
	// falling back to post-filtering otherwise.
	PreferPre
	// PostOnly always lands in the post-filter partition.
	PostOnly
)

// FilterOp names the shape of a FilterClause, independent of its kind.
type FilterOp int

const (
	DocIdEq FilterOp = iota
	DocIdIn
	SourceUriPrefix
	MetaEq
	MetaIn
	RangeNumeric
	RangeIsoDate
)

// FilterClause is a tagged variant over the filter shapes this engine
// understands. Only the fields relevant to Op are populated.
type FilterClause struct {
	Op   FilterOp
	Kind FilterKind

	// DocIdEq / SourceUriPrefix / MetaEq
	Key   string // used by MetaEq/MetaIn/RangeNumeric/RangeIsoDate
	Value string // DocIdEq, SourceUriPrefix, MetaEq

	// DocIdIn / MetaIn
	Values []string

	// RangeNumeric
	Min, Max         float64
	InclMin, InclMax bool

	// RangeIsoDate
	Start, End               string
	InclStart, InclEnd       bool
}

// IndexCaps declares which filter shapes an index can push down. An index
// must never be handed a clause its caps don't cover.
type IndexCaps struct {
	DocIdEq         bool
	DocIdIn         bool
	SourceUriPrefix bool
	MetaEq          bool
	MetaIn          bool
	RangeNumeric    bool
	RangeIsoDate    bool
}

// Supports reports whether caps declares pushdown support for op.
func (c IndexCaps) Supports(op FilterOp) bool {
	switch op {
	case DocIdEq:
		return c.DocIdEq
	case DocIdIn:
		return c.DocIdIn
	case SourceUriPrefix:
		return c.SourceUriPrefix
	case MetaEq:
		return c.MetaEq
	case MetaIn:
		return c.MetaIn
	case RangeNumeric:
		return c.RangeNumeric
	case RangeIsoDate:
		return c.RangeIsoDate
	default:
		return false
	}
}
