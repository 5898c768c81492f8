package core

import (
	"math"
	"testing"
)

func TestPosition_Active(t *testing.T) {
	tests := []struct {
		pos  Position
		want bool
	}{
		{PositionNone, false},
		{PositionBuy, true},
		{PositionSell, true},
		{PositionHold, true},
		{PositionNoHold, false},
	}

	for _, tt := range tests {
		if got := tt.pos.Active(); got != tt.want {
			t.Errorf("%s.Active() = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestPosition_Constants(t *testing.T) {
	positions := []Position{PositionNone, PositionBuy, PositionSell, PositionHold, PositionNoHold}
	expected := []string{"NONE", "BUY", "SELL", "HOLD", "NO_HOLD"}

	for i, p := range positions {
		if int(p) != i {
			t.Errorf("expected %s to encode as %d, got %d", p, i, int(p))
		}
		if p.String() != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], p)
		}
	}
}

func TestPosition_TextRoundTrip(t *testing.T) {
	var p Position
	if err := p.UnmarshalText([]byte("no_hold")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if p != PositionNoHold {
		t.Errorf("expected NO_HOLD, got %s", p)
	}
	if err := p.UnmarshalText([]byte("SHORT")); err == nil {
		t.Error("expected error for unknown position")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		nan   bool
	}{
		{"101.5", 101.5, false},
		{" 42 ", 42, false},
		{"-0.25", -0.25, false},
		{"", 0, true},
		{"MSFT", 0, true},
		{"inf", 0, true},
	}

	for _, tt := range tests {
		got := ParseNumber(tt.input)
		if tt.nan {
			if !math.IsNaN(got) {
				t.Errorf("ParseNumber(%q) = %v, want NaN", tt.input, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"True", true, false},
		{"false", false, false},
		{"1", true, false},
		{"0.0", false, false},
		{"", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		got, err := ParseFlag(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFlag(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFlag(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
