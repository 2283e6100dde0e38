package quickadd

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseQtyUnitToken(t *testing.T) {
	tests := []struct {
		input string
		qty   string
		unit  string
		ok    bool
	}{
		{"10bags", "10", "BAGS", true},
		{"2.5kg", "2.5", "KGS", true},
		{"3COIL", "3", "COIL", true},
		{"12pcs", "12", "NOS", true},
		{"53", "", "", false},
		{"2x2", "", "", false},
		{"cement", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			qty, unit, ok := parseQtyUnitToken(tt.input)
			if ok != tt.ok {
				t.Fatalf("parseQtyUnitToken(%q): got ok=%v, want %v", tt.input, ok, tt.ok)
			}
			if !ok {
				return
			}
			if !qty.Equal(decimal.RequireFromString(tt.qty)) {
				t.Errorf("parseQtyUnitToken(%q): qty = %s, want %s", tt.input, qty, tt.qty)
			}
			if unit != tt.unit {
				t.Errorf("parseQtyUnitToken(%q): unit = %q, want %q", tt.input, unit, tt.unit)
			}
		})
	}
}

func TestParse(t *testing.T) {
	text := `
cement opc 53 10bags
copper wire 2.5 sqmm 3 coil

led panel
PVC pipe 40mm 6 length
10bags
`
	lines, warnings := Parse(text)

	want := []struct {
		name string
		qty  string
		unit string
	}{
		{"cement opc 53", "10", "BAGS"},
		{"copper wire 2.5 sqmm", "3", "COIL"},
		{"led panel", "1", "NOS"},
		{"PVC pipe 40mm", "6", "LENGTH"},
	}

	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i, w := range want {
		if lines[i].Name != w.name {
			t.Errorf("line[%d].Name = %q, want %q", i, lines[i].Name, w.name)
		}
		if !lines[i].Quantity.Equal(decimal.RequireFromString(w.qty)) {
			t.Errorf("line[%d].Quantity = %s, want %s", i, lines[i].Quantity, w.qty)
		}
		if lines[i].Unit != w.unit {
			t.Errorf("line[%d].Unit = %q, want %q", i, lines[i].Unit, w.unit)
		}
	}

	if len(warnings) != 1 || warnings[0] != "skipped: 10bags" {
		t.Errorf("warnings = %v, want [skipped: 10bags]", warnings)
	}
}

func TestParse_Empty(t *testing.T) {
	lines, warnings := Parse("  \n\n ")
	if len(lines) != 0 || len(warnings) != 0 {
		t.Errorf("expected nothing, got lines=%v warnings=%v", lines, warnings)
	}
}

func TestParse_ZeroQuantity(t *testing.T) {
	lines, warnings := Parse("sand 0bags")
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %+v", lines)
	}
	if len(warnings) != 1 {
		t.Errorf("expected one warning, got %v", warnings)
	}
}
