package nba

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/courtcast/internal/apperr"
)

// statsResponse is the envelope of every stats endpoint: named tables of
// headers plus positional rows. A few endpoints use the singular key.
type statsResponse struct {
	ResultSets []resultSet `json:"resultSets"`
	ResultSet  *resultSet  `json:"resultSet"`
}

type resultSet struct {
	Name    string          `json:"name"`
	Headers []string        `json:"headers"`
	RowSet  [][]interface{} `json:"rowSet"`
}

// table is a decoded result set with a header index.
type table struct {
	name string
	cols map[string]int
	rows [][]interface{}
}

func decodeStats(body []byte) (*statsResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var resp statsResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding stats payload"), apperr.ErrUpstreamSchemaDrift)
	}
	return &resp, nil
}

// table returns the named result set, falling back to the first one when
// the endpoint uses an unnamed singular set.
func (r *statsResponse) table(name string) (*table, error) {
	sets := r.ResultSets
	if r.ResultSet != nil {
		sets = append(sets, *r.ResultSet)
	}
	for _, s := range sets {
		if strings.EqualFold(s.Name, name) {
			return newTable(s), nil
		}
	}
	return nil, apperr.SchemaDrift("response", name)
}

func newTable(s resultSet) *table {
	t := &table{name: s.Name, cols: make(map[string]int, len(s.Headers)), rows: s.RowSet}
	for i, h := range s.Headers {
		t.cols[strings.ToUpper(h)] = i
	}
	return t
}

// require checks that every named column exists. A missing column breaks
// every row, so it fails the whole call.
func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.cols[strings.ToUpper(c)]; !ok {
			return apperr.SchemaDrift(t.name, c)
		}
	}
	return nil
}

// row is one positional row viewed through its table's header index.
type row struct {
	t      *table
	values []interface{}
	idx    int
}

func (t *table) each(fn func(r row) error) []error {
	var errs []error
	for i, values := range t.rows {
		if err := fn(row{t: t, values: values, idx: i}); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r row) raw(col string) (interface{}, bool) {
	i, ok := r.t.cols[strings.ToUpper(col)]
	if !ok || i >= len(r.values) {
		return nil, false
	}
	v := r.values[i]
	if v == nil {
		return nil, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

func (r row) drift(col string) error {
	return apperr.SchemaDrift(r.t.name+" row "+strconv.Itoa(r.idx), col)
}

func (r row) optFloat(col string) (*float64, error) {
	v, ok := r.raw(col)
	if !ok {
		return nil, nil
	}
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, r.drift(col)
		}
		return &f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, r.drift(col)
		}
		return &f, nil
	default:
		return nil, r.drift(col)
	}
}

func (r row) float(col string) (float64, error) {
	f, err := r.optFloat(col)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, r.drift(col)
	}
	return *f, nil
}

func (r row) floatOr(col string, def float64) (float64, error) {
	f, err := r.optFloat(col)
	if err != nil || f == nil {
		return def, err
	}
	return *f, nil
}

func (r row) optInt(col string) (*int, error) {
	f, err := r.optFloat(col)
	if err != nil || f == nil {
		return nil, err
	}
	n := int(*f)
	return &n, nil
}

func (r row) int(col string) (int, error) {
	n, err := r.optInt(col)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, r.drift(col)
	}
	return *n, nil
}

func (r row) intOr(col string, def int) (int, error) {
	n, err := r.optInt(col)
	if err != nil || n == nil {
		return def, err
	}
	return *n, nil
}

func (r row) optString(col string) *string {
	v, ok := r.raw(col)
	if !ok {
		return nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case json.Number:
		s = x.String()
	default:
		return nil
	}
	return &s
}

func (r row) string(col string) (string, error) {
	s := r.optString(col)
	if s == nil {
		return "", r.drift(col)
	}
	return *s, nil
}

func (r row) date(col string, layouts ...string) (time.Time, error) {
	s, err := r.string(col)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, r.drift(col)
}
