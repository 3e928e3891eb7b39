package format

import "testing"

func TestAlign(t *testing.T) {
	tests := []struct {
		n, want8, wantPage int
	}{
		{0, 0, 0},
		{1, 8, 4096},
		{8, 8, 4096},
		{9, 16, 4096},
		{4096, 4096, 4096},
		{4097, 4104, 8192},
	}
	for _, tt := range tests {
		if got := Align8(tt.n); got != tt.want8 {
			t.Errorf("Align8(%d) = %d, want %d", tt.n, got, tt.want8)
		}
		if got := AlignPage(tt.n); got != tt.wantPage {
			t.Errorf("AlignPage(%d) = %d, want %d", tt.n, got, tt.wantPage)
		}
	}
}
