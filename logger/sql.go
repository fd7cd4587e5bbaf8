package logger

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const tmFmtWithMS = "2006-01-02 15:04:05.999"

func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// ExplainSQL renders sql with vars inlined, for logging only. The result
// must never be sent to a database. numericPlaceholder matches $1-style
// placeholders, its first group being the 1-based index; nil means `?`.
func ExplainSQL(sql string, numericPlaceholder *regexp.Regexp, escaper string, vars ...interface{}) string {
	formatted := make([]string, len(vars))
	for idx, v := range vars {
		formatted[idx] = explainVar(v, escaper)
	}

	if numericPlaceholder == nil {
		var (
			buf strings.Builder
			idx int
		)
		for _, r := range sql {
			if r == '?' && idx < len(formatted) {
				buf.WriteString(formatted[idx])
				idx++
				continue
			}
			buf.WriteRune(r)
		}
		return buf.String()
	}

	return numericPlaceholder.ReplaceAllStringFunc(sql, func(m string) string {
		groups := numericPlaceholder.FindStringSubmatch(m)
		if len(groups) < 2 {
			return m
		}
		n, err := strconv.Atoi(groups[1])
		if err != nil || n < 1 || n > len(formatted) {
			return m
		}
		return formatted[n-1]
	})
}

func quoted(s, escaper string) string {
	return escaper + strings.ReplaceAll(s, escaper, "\\"+escaper) + escaper
}

func explainVar(v interface{}, escaper string) string {
	if valuer, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return "NULL"
		}
		v, _ = valuer.Value()
	}

	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return quoted("0000-00-00 00:00:00", escaper)
		}
		return quoted(v.Format(tmFmtWithMS), escaper)
	case *time.Time:
		if v == nil {
			return "NULL"
		}
		return explainVar(*v, escaper)
	case []byte:
		if s := string(v); isPrintable(s) {
			return quoted(s, escaper)
		}
		return quoted("<binary>", escaper)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return quoted(v, escaper)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "NULL"
		}
		return explainVar(rv.Elem().Interface(), escaper)
	}

	switch rv.Kind() {
	case reflect.String:
		return quoted(rv.String(), escaper)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return explainVar(rv.Bytes(), escaper)
		}
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return quoted(fmt.Sprint(v), escaper)
}
