package app

import "testing"

func TestComputeUsage(t *testing.T) {
	cases := []struct {
		name        string
		used, max   int64
		wantPercent int
		wantRemain  int64
	}{
		{"empty", 0, 1 << 30, 0, 1 << 30},
		{"half", 512 << 20, 1 << 30, 50, 512 << 20},
		{"rounding", 1, 1 << 30, 0, (1 << 30) - 1},
		{"just under half", 536870911, 1 << 30, 50, 536870913},
		{"full", 1 << 30, 1 << 30, 100, 0},
		{"over ceiling clamps", 2 << 30, 1 << 30, 100, 0},
		{"zero ceiling", 500, 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			usage := computeUsage(c.used, c.max)
			if usage.UsedPercent != c.wantPercent {
				t.Fatalf("UsedPercent = %d, want %d", usage.UsedPercent, c.wantPercent)
			}
			if usage.RemainingBytes != c.wantRemain {
				t.Fatalf("RemainingBytes = %d, want %d", usage.RemainingBytes, c.wantRemain)
			}
			if usage.UsedBytes != c.used {
				t.Fatalf("UsedBytes = %d, want %d", usage.UsedBytes, c.used)
			}
		})
	}
}
