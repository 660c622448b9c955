package hal

import "testing"

func TestOutputModeNamesRoundTrip(t *testing.T) {
	for _, m := range []OutputMode{OutputNone, OutputSet, OutputClear, OutputToggle} {
		got, ok := ParseOutputMode(m.String())
		if !ok || got != m {
			t.Fatalf("ParseOutputMode(%q) = %v,%v", m.String(), got, ok)
		}
	}
	if _, ok := ParseOutputMode("pulse"); ok {
		t.Fatal("unknown mode accepted")
	}
	if m, ok := ParseOutputMode(""); !ok || m != OutputNone {
		t.Fatal("empty mode should mean none")
	}
}

func TestParseOutput(t *testing.T) {
	cases := []struct {
		in   string
		want Output
		ok   bool
	}{
		{"a", OutputA, true},
		{"B", OutputB, true},
		{"c", NumOutputs, false},
		{"", NumOutputs, false},
	}
	for _, c := range cases {
		got, ok := ParseOutput(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseOutput(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
	if OutputA.String() != "a" || OutputB.String() != "b" {
		t.Fatal("unexpected output names")
	}
}
