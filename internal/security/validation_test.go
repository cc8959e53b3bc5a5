package security

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		size    int
		depth   int
		wantErr error
	}{
		{"ok", `{"text":"hello"}`, 0, 0, nil},
		{"empty", ``, 0, 0, nil},
		{"too large", `{"text":"` + strings.Repeat("a", 64) + `"}`, 32, 0, ErrPayloadTooLarge},
		{"too deep", `{"a":{"b":{"c":[1]}}}`, 0, 3, ErrJSONTooDeep},
		{"at depth limit", `{"a":{"b":1}}`, 0, 2, nil},
		{"broken", `{"text":`, 0, 0, ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePayload([]byte(tt.data), tt.size, tt.depth)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
