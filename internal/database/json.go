package database

import (
	"database/sql"
	"encoding/json"
	"reflect"
)

// toJSON serializes a value for a TEXT column; nil maps, slices, and
// pointers become SQL NULL.
func toJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		if rv.IsNil() {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// fromJSON deserializes a TEXT column into target; NULL leaves target
// untouched.
func fromJSON(s sql.NullString, target any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), target)
}
