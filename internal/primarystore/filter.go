package primarystore

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

// buildWhere pushes the subset of clauses this store can express in SQL
// (DocIdEq/DocIdIn/SourceUriPrefix/RangeIsoDate) into a WHERE fragment, to
// shrink the scan before the full record-level re-check in matchesAll.
// Clauses outside that subset are left for the in-Go pass only.
func buildWhere(clauses []chunkmodel.FilterClause) (string, []any) {
	var parts []string
	var args []any

	for _, c := range clauses {
		switch c.Op {
		case chunkmodel.DocIdEq:
			parts = append(parts, "doc_id = ?")
			args = append(args, c.Value)
		case chunkmodel.DocIdIn:
			if len(c.Values) == 0 {
				continue
			}
			ph, vargs := inClauseAny(c.Values)
			parts = append(parts, "doc_id IN ("+ph+")")
			args = append(args, vargs...)
		case chunkmodel.SourceUriPrefix:
			parts = append(parts, "source_uri LIKE ? ESCAPE '\\'")
			args = append(args, escapeLikePrefix(c.Value)+"%")
		case chunkmodel.RangeIsoDate:
			if c.Key != "extracted_at" {
				continue
			}
			if c.Start != "" {
				op := ">="
				if !c.InclStart {
					op = ">"
				}
				parts = append(parts, "extracted_at "+op+" ?")
				args = append(args, c.Start)
			}
			if c.End != "" {
				op := "<="
				if !c.InclEnd {
					op = "<"
				}
				parts = append(parts, "extracted_at "+op+" ?")
				args = append(args, c.End)
			}
		}
	}

	return strings.Join(parts, " AND "), args
}

func escapeLikePrefix(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func inClauseAny(vals []string) (string, []any) {
	ph := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		ph[i] = "?"
		args[i] = v
	}
	return strings.Join(ph, ","), args
}

// postFilterRecord carries the columns needed to evaluate every FilterOp
// against a materialised record, per §4.8's exact semantics.
type postFilterRecord struct {
	docID       string
	sourceURI   string
	extractedAt string
	metaJSON    string

	meta     map[string]string
	metaDone bool
}

func (r *postFilterRecord) metaMap() map[string]string {
	if !r.metaDone {
		_ = json.Unmarshal([]byte(r.metaJSON), &r.meta)
		r.metaDone = true
	}
	return r.meta
}

// matchesAll applies every clause's record-level semantics (§4.8) to rec.
// Because it re-checks pushdown-eligible clauses too, applying it after a
// narrowed SQL scan is equivalent to applying the full filter set to every
// record (P10's conservatism requirement).
func matchesAll(clauses []chunkmodel.FilterClause, rec postFilterRecord) bool {
	for _, c := range clauses {
		if !matchesOne(c, &rec) {
			return false
		}
	}
	return true
}

func matchesOne(c chunkmodel.FilterClause, rec *postFilterRecord) bool {
	switch c.Op {
	case chunkmodel.DocIdEq:
		return rec.docID == c.Value
	case chunkmodel.DocIdIn:
		for _, v := range c.Values {
			if rec.docID == v {
				return true
			}
		}
		return false
	case chunkmodel.SourceUriPrefix:
		return strings.HasPrefix(rec.sourceURI, c.Value)
	case chunkmodel.MetaEq:
		v, ok := rec.metaMap()[c.Key]
		return ok && v == c.Value
	case chunkmodel.MetaIn:
		v, ok := rec.metaMap()[c.Key]
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
		v, ok := rec.metaMap()[c.Key]
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
		val := rec.extractedAt
		if c.Key != "" && c.Key != "extracted_at" {
			v, ok := rec.metaMap()[c.Key]
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
