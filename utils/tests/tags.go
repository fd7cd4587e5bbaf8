package tests

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Tags is stored as one comma separated TEXT column.
type Tags []string

func (t *Tags) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Tags", value)
	}

	if s == "" {
		*t = Tags{}
		return nil
	}
	*t = strings.Split(s, ",")
	return nil
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return strings.Join(t, ","), nil
}
