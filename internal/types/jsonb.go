package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*Metadata)(nil)
	_ driver.Valuer = Metadata(nil)
)

// scanJSONB scans a JSON column value into dest. It accepts the []byte and
// string representations different drivers return.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Metadata is a free-form JSON object stored alongside payments and
// subscriptions (card token, original transaction id, test mode, ...).
type Metadata map[string]any

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements driver.Valuer. A nil map is stored as SQL NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
