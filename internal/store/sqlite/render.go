package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/query"
)

// entryFrom joins an entry with its catalog item; every plan reads from it.
const entryFrom = `collection_entries e JOIN catalog_items c ON c.id = e.item_id`

// columns maps plan fields to SQL expressions over entryFrom.
var columns = map[query.Field]string{
	query.FieldID:             "e.id",
	query.FieldCreatedAt:      "e.created_at",
	query.FieldTitle:          "c.title",
	query.FieldDescription:    "c.description",
	query.FieldIsViewed:       "e.is_viewed",
	query.FieldFavorite:       "e.recommend_similar",
	query.FieldAvailability:   "e.availability",
	query.FieldYear:           "c.year",
	query.FieldExternalRating: "c.external_rating",
	query.FieldRating:         "e.rating",
	query.FieldViewedAt:       "e.viewed_at",
}

// matchColumns holds the folded copies searched by Match predicates.
var matchColumns = map[query.Field]string{
	query.FieldTitle:       "c.title_fold",
	query.FieldDescription: "c.description_fold",
}

func column(f query.Field) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("unknown field %q", f)
	}
	return col, nil
}

// whereClause renders the scope and predicates of a plan into a WHERE clause and its arguments.
func whereClause(scope query.Scope, preds []query.Predicate) (string, []any, error) {
	conds := []string{"e.owner_id = ?", "c.category = ?"}
	args := []any{scope.OwnerID, string(scope.Category)}

	for _, p := range preds {
		switch p := p.(type) {
		case query.Match:
			ors := make([]string, 0, len(p.Fields))
			for _, f := range p.Fields {
				col, ok := matchColumns[f]
				if !ok {
					return "", nil, fmt.Errorf("field %q is not searchable", f)
				}
				ors = append(ors, col+` LIKE ? ESCAPE '`+query.EscapeChar+`'`)
				args = append(args, p.Pattern)
			}
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")

		case query.Equals:
			col, err := column(p.Field)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, col+" = ?")
			args = append(args, sqlValue(p.Value))

		case query.Between:
			col, err := column(p.Field)
			if err != nil {
				return "", nil, err
			}
			if p.From != nil {
				conds = append(conds, col+" >= ?")
				args = append(args, sqlValue(p.From))
			}
			if p.To != nil {
				conds = append(conds, col+" <= ?")
				args = append(args, sqlValue(p.To))
			}

		case query.In:
			col, err := column(p.Field)
			if err != nil {
				return "", nil, err
			}
			if len(p.Values) == 0 {
				conds = append(conds, "0")
				continue
			}
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
			conds = append(conds, col+" IN ("+marks+")")
			for _, v := range p.Values {
				args = append(args, v)
			}

		default:
			return "", nil, fmt.Errorf("unsupported predicate %T", p)
		}
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// orderClause renders order terms. Nulls-last terms sort on an IS NULL key first.
func orderClause(terms []query.OrderTerm) (string, error) {
	if len(terms) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(terms)+1)
	for _, t := range terms {
		col, err := column(t.Field)
		if err != nil {
			return "", err
		}
		if t.Field == query.FieldTitle {
			col += " COLLATE NOCASE"
		}
		if t.NullsLast {
			parts = append(parts, col+" IS NULL")
		}
		if t.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// sqlValue converts plan values to driver values.
func sqlValue(v any) any {
	switch v := v.(type) {
	case bool:
		return boolInt(v)
	case time.Time:
		return formatTime(v)
	default:
		return v
	}
}
