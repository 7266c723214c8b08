package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Filter selects rows for a query, update or delete. The zero value
// matches every row the caller owns.
type Filter struct {
	Eq     map[string]string   // column = value
	Null   []string            // column IS NULL
	In     map[string][]string // column IN (values); an empty list matches nothing
	Search string              // case-insensitive substring over the table's text columns
	Order  string              // column to sort by; empty = id
	Desc   bool
	Limit  int // 0 = no limit
}

// ByID matches a single row.
func ByID(id int64) Filter {
	return Filter{}.Where("id", id)
}

// ByIDs matches the listed rows.
func ByIDs(ids []int64) Filter {
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return Filter{}.WhereIn("id", vals...)
}

// Where adds an equality condition.
func (f Filter) Where(col string, val any) Filter {
	f.Eq = maps.Clone(f.Eq)
	if f.Eq == nil {
		f.Eq = make(map[string]string)
	}
	f.Eq[col] = fmt.Sprint(val)
	return f
}

// IsNull adds an IS NULL condition.
func (f Filter) IsNull(col string) Filter {
	f.Null = append(slices.Clone(f.Null), col)
	return f
}

// WhereIn adds a membership condition.
func (f Filter) WhereIn(col string, vals ...any) Filter {
	f.In = maps.Clone(f.In)
	if f.In == nil {
		f.In = make(map[string][]string)
	}
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = fmt.Sprint(v)
	}
	f.In[col] = strs
	return f
}

// Matching sets the search text.
func (f Filter) Matching(q string) Filter {
	f.Search = q
	return f
}

// OrderBy sets the sort column.
func (f Filter) OrderBy(col string, desc bool) Filter {
	f.Order, f.Desc = col, desc
	return f
}

// Take caps the number of rows.
func (f Filter) Take(n int) Filter {
	f.Limit = n
	return f
}

// IsZero reports whether f has no row conditions. Order and limit are ignored.
func (f Filter) IsZero() bool {
	return len(f.Eq) == 0 && len(f.Null) == 0 && len(f.In) == 0 && f.Search == ""
}

// Values encodes the filter as query parameters:
// eq.col=v, is.col=null, in.col=a,b, q=text, order=col.asc|desc, limit=n.
func (f Filter) Values() url.Values {
	v := url.Values{}
	for col, val := range f.Eq {
		v.Set("eq."+col, val)
	}
	for _, col := range f.Null {
		v.Set("is."+col, "null")
	}
	for col, vals := range f.In {
		v.Set("in."+col, strings.Join(vals, ","))
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	if f.Order != "" {
		dir := "asc"
		if f.Desc {
			dir = "desc"
		}
		v.Set("order", f.Order+"."+dir)
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

// ParseFilter decodes query parameters produced by Values.
func ParseFilter(v url.Values) (Filter, error) {
	var f Filter
	for key, vals := range v {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch {
		case strings.HasPrefix(key, "eq."):
			f = f.Where(strings.TrimPrefix(key, "eq."), val)
		case strings.HasPrefix(key, "is."):
			if val != "null" {
				return Filter{}, fmt.Errorf("unsupported is.%s value %q", strings.TrimPrefix(key, "is."), val)
			}
			f = f.IsNull(strings.TrimPrefix(key, "is."))
		case strings.HasPrefix(key, "in."):
			var items []any
			if val != "" {
				for _, s := range strings.Split(val, ",") {
					items = append(items, s)
				}
			}
			f = f.WhereIn(strings.TrimPrefix(key, "in."), items...)
		case key == "q":
			f.Search = val
		case key == "order":
			col, dir, _ := strings.Cut(val, ".")
			switch dir {
			case "", "asc":
			case "desc":
				f.Desc = true
			default:
				return Filter{}, fmt.Errorf("bad order direction %q", dir)
			}
			f.Order = col
		case key == "limit":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return Filter{}, fmt.Errorf("bad limit %q", val)
			}
			f.Limit = n
		default:
			return Filter{}, fmt.Errorf("unknown query parameter %q", key)
		}
	}
	slices.Sort(f.Null)
	return f, nil
}

// RowFilter narrows a realtime subscription to rows where Column equals Value.
// Its text form is "column=eq.value".
type RowFilter struct {
	Column string
	Value  string
}

// ParseRowFilter parses "column=eq.value". Empty input yields the zero filter.
func ParseRowFilter(s string) (RowFilter, error) {
	if s == "" {
		return RowFilter{}, nil
	}
	col, rest, ok := strings.Cut(s, "=")
	if !ok || col == "" || !strings.HasPrefix(rest, "eq.") {
		return RowFilter{}, fmt.Errorf("bad row filter %q (want column=eq.value)", s)
	}
	return RowFilter{Column: col, Value: strings.TrimPrefix(rest, "eq.")}, nil
}

// String returns the "column=eq.value" form, or "" for the zero filter.
func (r RowFilter) String() string {
	if r.Column == "" {
		return ""
	}
	return r.Column + "=eq." + r.Value
}

// Matches reports whether either side of ev has Column equal to Value.
// The zero filter matches everything.
func (r RowFilter) Matches(ev ChangeEvent) bool {
	if r.Column == "" {
		return true
	}
	for _, raw := range []json.RawMessage{ev.New, ev.Old} {
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			continue
		}
		if v, ok := row[r.Column]; ok && v != nil && fmt.Sprint(v) == r.Value {
			return true
		}
	}
	return false
}
