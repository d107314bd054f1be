package artifact

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Value implements driver.Valuer so Map can be used directly as a GORM field
// type backed by a jsonb column, matching the teacher's gormLogger-configured
// JSON column idiom without an extra datatypes.JSON wrapper per field.
func (m Map) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Map) Scan(src interface{}) error {
	if src == nil {
		*m = Map{}
		return nil
	}
	var raw []byte
	switch t := src.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return fmt.Errorf("artifact: unsupported Scan source type %T", src)
	}
	if len(raw) == 0 {
		*m = Map{}
		return nil
	}
	out := Map{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("artifact: scan unmarshal: %w", err)
	}
	*m = out
	return nil
}

// GormDataType tells GORM's postgres driver to declare this field jsonb.
func (Map) GormDataType() string { return "jsonb" }
