package types

import (
	"encoding/json"
	"testing"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	if err := id1.Validate(); err != nil {
		t.Fatalf("NewID() produced invalid ID: %v", err)
	}
	if id1 == id2 {
		t.Error("NewID() should produce unique IDs")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid uuid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"uppercase normalized", "550E8400-E29B-41D4-A716-446655440000", false},
		{"empty", "", true},
		{"not a uuid", "not-a-uuid", true},
		{"truncated", "550e8400-e29b-41d4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil {
				if verr := id.Validate(); verr != nil {
					t.Errorf("parsed ID failed Validate(): %v", verr)
				}
			}
		})
	}
}

func TestID_JSON(t *testing.T) {
	id := NewID()

	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back ID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != id {
		t.Errorf("round trip = %v, want %v", back, id)
	}

	// Zero IDs serialize as null.
	data, err = json.Marshal(ID(""))
	if err != nil {
		t.Fatalf("Marshal zero: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("zero ID = %s, want null", data)
	}

	if err := json.Unmarshal([]byte(`"garbage"`), &back); err == nil {
		t.Error("Unmarshal should reject non-UUID strings")
	}
}
