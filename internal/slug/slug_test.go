package slug

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Labubu Macaron Series", "labubu-macaron-series"},
		{"  Hộp Mù Đặc Biệt!  ", "hop-mu-dac-biet"},
		{"Crème brûlée -- 2024", "creme-brulee-2024"},
		{"***", ""},
		{"Ärger_über Öl", "arger-uber-ol"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Make(tt.in); got != tt.want {
				t.Fatalf("Make(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
