// Package orchestrator fuses the primary store, lexical index and vector
// index into the ingest/delete/search pipelines: filter-clause planning,
// adaptive embedding batches, weighted score fusion, and cooperative
// cancellation, all coordinated behind the component boundaries declared
// by chunkmodel.
package orchestrator

import (
	"strconv"
	"strings"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

// Plan partitions clauses into a pre-filter set (pushed down to an index
// whose caps support the clause) and a post-filter set (re-checked against
// materialised records). PreferPre clauses fall back to post when caps
// don't support them; PostOnly clauses always land in post; Must clauses
// end up in exactly one of the two partitions, never dropped.
func Plan(clauses []chunkmodel.FilterClause, caps chunkmodel.IndexCaps) (pre, post []chunkmodel.FilterClause) {
	for _, c := range clauses {
		switch c.Kind {
		case chunkmodel.PostOnly:
			post = append(post, c)
		case chunkmodel.PreferPre:
			if caps.Supports(c.Op) {
				pre = append(pre, c)
			} else {
				post = append(post, c)
			}
		default: // Must
			if caps.Supports(c.Op) {
				pre = append(pre, c)
			} else {
				post = append(post, c)
			}
		}
	}
	return pre, post
}

// MatchesAll applies every clause's record-level semantics (§4.8) to rec.
// Used by the orchestrator to re-check clauses against materialised
// ChunkRecords after an index's candidate fetch, regardless of whether the
// index itself also pushed some of them down.
func MatchesAll(clauses []chunkmodel.FilterClause, rec chunkmodel.ChunkRecord) bool {
	for _, c := range clauses {
		if !matchesOne(c, rec) {
			return false
		}
	}
	return true
}

func matchesOne(c chunkmodel.FilterClause, rec chunkmodel.ChunkRecord) bool {
	switch c.Op {
	case chunkmodel.DocIdEq:
		return rec.DocID == c.Value
	case chunkmodel.DocIdIn:
		for _, v := range c.Values {
			if rec.DocID == v {
				return true
			}
		}
		return false
	case chunkmodel.SourceUriPrefix:
		return strings.HasPrefix(rec.SourceURI, c.Value)
	case chunkmodel.MetaEq:
		v, ok := rec.Meta[c.Key]
		return ok && v == c.Value
	case chunkmodel.MetaIn:
		v, ok := rec.Meta[c.Key]
		if !ok {
			return false
		}
		for _, want := range c.Values {
			if v == want {
				return true
			}
		}
		return false
	case chunkmodel.RangeNumeric:
		v, ok := rec.Meta[c.Key]
		if !ok {
			return false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		if c.InclMin {
			if f < c.Min {
				return false
			}
		} else if f <= c.Min {
			return false
		}
		if c.InclMax {
			if f > c.Max {
				return false
			}
		} else if f >= c.Max {
			return false
		}
		return true
	case chunkmodel.RangeIsoDate:
		val := rec.ExtractedAt
		if c.Key != "" && c.Key != "extracted_at" {
			v, ok := rec.Meta[c.Key]
			if !ok {
				return false
			}
			val = v
		}
		if val == "" {
			return false
		}
		if c.Start != "" {
			if c.InclStart && val < c.Start {
				return false
			}
			if !c.InclStart && val <= c.Start {
				return false
			}
		}
		if c.End != "" {
			if c.InclEnd && val > c.End {
				return false
			}
			if !c.InclEnd && val >= c.End {
				return false
			}
		}
		return true
	default:
		return true
	}
}
