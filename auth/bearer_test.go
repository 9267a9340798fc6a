package auth

import (
	"net/http/httptest"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"standard", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"lowercase scheme", "bearer abc", "abc", true},
		{"mixed case scheme", "BeArEr abc", "abc", true},
		{"extra whitespace", "  Bearer \t abc  ", "abc", true},
		{"empty", "", "", false},
		{"scheme only", "Bearer", "", false},
		{"scheme with trailing space", "Bearer ", "", false},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", false},
		{"token only", "abc.def.ghi", "", false},
		{"three parts", "Bearer abc def", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractBearerToken(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ExtractBearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBearerFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/rbac-secure", nil)
	if _, ok := BearerFromRequest(r); ok {
		t.Error("BearerFromRequest() without header should fail")
	}
	r.Header.Set("Authorization", "Bearer tok")
	if got, ok := BearerFromRequest(r); !ok || got != "tok" {
		t.Errorf("BearerFromRequest() = (%q, %v)", got, ok)
	}
}
