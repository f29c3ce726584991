package body

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Body
		wantErr bool
	}{
		{"Moon", Moon, false},
		{"moon", Moon, false},
		{" PLUTO ", Pluto, false},
		{"Node", NNode, false},
		{"NorthNode", NNode, false},
		{"asc", ASC, false},
		{"Desc", DSC, false},
		{"Chiron", None, true},
		{"", None, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAxis(t *testing.T) {
	tests := []struct {
		b    Body
		want Axis
		opp  Body
	}{
		{ASC, Horizontal, DSC},
		{DSC, Horizontal, ASC},
		{MC, Vertical, IC},
		{IC, Vertical, MC},
		{Sun, NoAxis, None},
		{NNode, NoAxis, None},
	}
	for _, tt := range tests {
		if got := tt.b.Axis(); got != tt.want {
			t.Errorf("%v.Axis() = %v, want %v", tt.b, got, tt.want)
		}
		if got := tt.b.Opposite(); got != tt.opp {
			t.Errorf("%v.Opposite() = %v, want %v", tt.b, got, tt.opp)
		}
	}
}

func TestClassification(t *testing.T) {
	if !Sun.IsPlanet() || NNode.IsPlanet() || ASC.IsPlanet() {
		t.Error("IsPlanet classification wrong")
	}
	if !IC.IsAngle() || Pluto.IsAngle() {
		t.Error("IsAngle classification wrong")
	}
	if !Jupiter.IsSlow() || Mars.IsSlow() {
		t.Error("IsSlow classification wrong")
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, b := range Targets {
		text, err := b.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", b, err)
		}
		var got Body
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != b {
			t.Errorf("round trip %v -> %q -> %v", b, text, got)
		}
	}
	if text, err := None.MarshalText(); err != nil || len(text) != 0 {
		t.Errorf("MarshalText(None) = %q, %v; want empty", text, err)
	}
	if _, err := Body(99).MarshalText(); err == nil {
		t.Error("MarshalText(99) should fail")
	}
}
