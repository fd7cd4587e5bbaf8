package dialect

import (
	"sort"
	"strings"
)

// DSN is a PostgreSQL keyword/value connection string.
type DSN struct {
	Host    string
	Port    string
	User    string
	Pass    string
	Db      string
	Options map[string]string
}

// String renders dbname, user, password, host and port in that order,
// then the options sorted by key. Empty values are left out.
func (d DSN) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+quoteDSNValue(v))
		}
	}

	add("dbname", d.Db)
	add("user", d.User)
	add("password", d.Pass)
	add("host", d.Host)
	add("port", d.Port)

	keys := make([]string, 0, len(d.Options))
	for k := range d.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, d.Options[k])
	}

	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
