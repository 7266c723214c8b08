package store

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

type kind int

const (
	kindInt kind = iota
	kindText
	kindBool
)

func (k kind) convert(col, v string) (any, error) {
	switch k {
	case kindInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an integer, got %q", ErrBadFilter, col, v)
		}
		return n, nil
	case kindBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a boolean, got %q", ErrBadFilter, col, v)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return v, nil
}

// table describes the filterable surface of one SQL table.
type table struct {
	name    string
	columns map[string]kind
	search  []string
	// owner returns the row-level visibility clause for an identity.
	owner func(identity string) (string, []any)
}

func ownedBy(col string) func(string) (string, []any) {
	return func(identity string) (string, []any) {
		return col + " = ?", []any{identity}
	}
}

// clause renders "WHERE ... ORDER BY ... [LIMIT ?]" for f.
func (t table) clause(identity string, f schema.Filter) (string, []any, error) {
	var conds []string
	var args []any

	if t.owner != nil {
		c, a := t.owner(identity)
		conds = append(conds, c)
		args = append(args, a...)
	}

	for _, col := range sortedKeys(f.Eq) {
		k, ok := t.columns[col]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown column %s.%s", ErrBadFilter, t.name, col)
		}
		v, err := k.convert(col, f.Eq[col])
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}

	for _, col := range f.Null {
		if _, ok := t.columns[col]; !ok {
			return "", nil, fmt.Errorf("%w: unknown column %s.%s", ErrBadFilter, t.name, col)
		}
		conds = append(conds, col+" IS NULL")
	}

	for _, col := range sortedKeys(f.In) {
		k, ok := t.columns[col]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown column %s.%s", ErrBadFilter, t.name, col)
		}
		vals := f.In[col]
		if len(vals) == 0 {
			conds = append(conds, "0")
			continue
		}
		marks := make([]string, len(vals))
		for i, raw := range vals {
			v, err := k.convert(col, raw)
			if err != nil {
				return "", nil, err
			}
			marks[i] = "?"
			args = append(args, v)
		}
		conds = append(conds, col+" IN ("+strings.Join(marks, ", ")+")")
	}

	if f.Search != "" && len(t.search) > 0 {
		needle := strings.ToLower(f.Search)
		var ors []string
		for _, col := range t.search {
			ors = append(ors, "instr(lower("+col+"), ?) > 0")
			args = append(args, needle)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	var b strings.Builder
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	order := "id"
	if f.Order != "" {
		if _, ok := t.columns[f.Order]; !ok {
			return "", nil, fmt.Errorf("%w: cannot order by %s.%s", ErrBadFilter, t.name, f.Order)
		}
		order = f.Order
	}
	b.WriteString(" ORDER BY " + order)
	if f.Desc {
		b.WriteString(" DESC")
	}
	if order != "id" {
		b.WriteString(", id")
	}

	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}
	return b.String(), args, nil
}

// requireScope refuses bulk writes with no row conditions.
func requireScope(op, tbl string, f schema.Filter) error {
	if f.IsZero() {
		return fmt.Errorf("%w: refusing to %s every row of %s", ErrBadFilter, op, tbl)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
