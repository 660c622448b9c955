package conv

import (
	"math"
	"testing"
)

func TestAppendUint(t *testing.T) {
	for n, want := range map[uint64]string{0: "0", 7: "7", 976: "976", math.MaxUint64: "18446744073709551615"} {
		if got := string(AppendUint(nil, n)); got != want {
			t.Errorf("AppendUint(%d) = %q", n, got)
		}
	}
	if got := string(AppendUint([]byte("cm="), 97)); got != "cm=97" {
		t.Fatalf("prefix lost: %q", got)
	}
}

func TestAppendInt(t *testing.T) {
	for n, want := range map[int64]string{0: "0", -5: "-5", 42: "42", math.MinInt64: "-9223372036854775808"} {
		if got := string(AppendInt(nil, n)); got != want {
			t.Errorf("AppendInt(%d) = %q", n, got)
		}
	}
}

func TestAppendMilli(t *testing.T) {
	for n, want := range map[int32]string{21500: "21.500", 5: "0.005", -1250: "-1.250"} {
		if got := string(AppendMilli(nil, n)); got != want {
			t.Errorf("AppendMilli(%d) = %q", n, got)
		}
	}
}
