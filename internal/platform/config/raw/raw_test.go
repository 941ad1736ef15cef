package raw

import "testing"

func TestGet(t *testing.T) {
	t.Setenv("LOG_LEVEL", " warn ")
	t.Setenv("LOG_EMPTY", "   ")

	c := New().Prefix("LOG_")
	tests := []struct {
		key, def, want string
	}{
		{"LEVEL", "info", "warn"},
		{"EMPTY", "info", "info"},
		{"MISSING", "x", "x"},
	}
	for _, tt := range tests {
		if got := c.Get(tt.key, tt.def); got != tt.want {
			t.Fatalf("Get(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestGetBool(t *testing.T) {
	c := New().Prefix("B_")
	t.Setenv("B_ONE", "1")
	t.Setenv("B_YES", "YES")
	t.Setenv("B_ON", " on ")
	t.Setenv("B_NO", "no")
	t.Setenv("B_JUNK", "maybe")

	tests := []struct {
		key  string
		def  bool
		want bool
	}{
		{"ONE", false, true},
		{"YES", false, true},
		{"ON", false, true},
		{"NO", true, false},
		{"JUNK", true, false},
		{"MISSING", true, true},
	}
	for _, tt := range tests {
		if got := c.GetBool(tt.key, tt.def); got != tt.want {
			t.Fatalf("GetBool(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestPrefixNests(t *testing.T) {
	t.Setenv("A_B_C", "v")
	if got := New().Prefix("A_").Prefix("B_").Get("C", ""); got != "v" {
		t.Fatalf("nested prefix Get = %q", got)
	}
}
