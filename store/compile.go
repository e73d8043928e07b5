package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weiihann/ledgerbench/query"
)

var sqlOps = map[query.Op]string{
	query.Eq:  "=",
	query.Lt:  "<",
	query.Lte: "<=",
	query.Gt:  ">",
	query.Gte: ">=",
}

// compileSelector turns a selector into a parameterized WHERE fragment over
// json_extract. Values are always bound, never interpolated.
func compileSelector(sel query.Selector) (string, []any, error) {
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}

	clauses := make([]string, 0, len(sel.Conditions))
	args := make([]any, 0, 2*len(sel.Conditions))

	for _, c := range sel.Conditions {
		clauses = append(clauses, fmt.Sprintf("json_extract(value, ?) %s ?", sqlOps[c.Op]))
		args = append(args, jsonPath(c.Path), c.Value)
	}

	return strings.Join(clauses, " AND "), args, nil
}

// jsonPath converts "a.b.1" into the SQLite JSON path "$.a.b[1]".
func jsonPath(path string) string {
	var b strings.Builder
	b.WriteString("$")

	for _, seg := range strings.Split(path, ".") {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString(`."` + seg + `"`)
	}

	return b.String()
}
