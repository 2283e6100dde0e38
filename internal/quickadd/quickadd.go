// Package quickadd parses pasted free-text item lists such as
//
//	cement opc 53 10bags
//	copper wire 2.5 sqmm 3 coil
//	led panel
//
// into item names with a quantity and unit.
package quickadd

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/procura/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Line is a single parsed item line.
type Line struct {
	RawText  string
	Name     string
	Quantity decimal.Decimal
	Unit     string
}

// Unit aliases accepted in pasted text, mapped onto the unit vocabulary.
var unitAliases = map[string]string{
	"nos": enum.UnitNos, "no": enum.UnitNos, "pcs": enum.UnitNos, "pc": enum.UnitNos,
	"box": enum.UnitBox, "boxes": enum.UnitBox,
	"roll": enum.UnitRoll, "rolls": enum.UnitRoll,
	"length": enum.UnitLength, "lengths": enum.UnitLength,
	"m": enum.UnitMeter, "mtr": enum.UnitMeter, "mtrs": enum.UnitMeter,
	"kg": enum.UnitKgs, "kgs": enum.UnitKgs,
	"pair": enum.UnitPairs, "pairs": enum.UnitPairs,
	"pack": enum.UnitPacks, "packs": enum.UnitPacks, "pkt": enum.UnitPacks,
	"drum": enum.UnitDrum, "drums": enum.UnitDrum,
	"coil": enum.UnitCoil, "coils": enum.UnitCoil,
	"sqm": enum.UnitSqMtr, "sqmtr": enum.UnitSqMtr,
	"l": enum.UnitLtr, "ltr": enum.UnitLtr, "ltrs": enum.UnitLtr,
	"bundle": enum.UnitBundle, "bundles": enum.UnitBundle,
	"sqft": enum.UnitSqFt,
	"set": enum.UnitSet, "sets": enum.UnitSet,
	"bag": enum.UnitBags, "bags": enum.UnitBags,
	"rft": enum.UnitRFT,
	"ton": enum.UnitTon, "tons": enum.UnitTon,
	"carton": enum.UnitCarton, "cartons": enum.UnitCarton,
}

// Parse splits text into lines and parses each as an item.
// Lines that cannot be parsed are reported as warnings.
func Parse(text string) ([]Line, []string) {
	var lines []Line
	var warnings []string

	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		line, err := parseLine(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped: %s", raw))
			continue
		}
		lines = append(lines, *line)
	}
	return lines, warnings
}

// parseLine parses a single line (e.g. "cement opc 53 10bags" or "pipe 4 length").
// The last quantity found wins so that sizes inside names ("opc 53") stay in the name.
func parseLine(raw string) (*Line, error) {
	tokens := strings.Fields(raw)

	qty := decimal.NewFromInt(1)
	unit := enum.UnitNos
	qtyAt, qtyLen := -1, 0

	for i := 0; i < len(tokens); i++ {
		if q, u, ok := parseQtyUnitToken(tokens[i]); ok {
			qty, unit, qtyAt, qtyLen = q, u, i, 1
			continue
		}
		if i+1 < len(tokens) {
			u, isUnit := unitAliases[strings.ToLower(tokens[i+1])]
			q, err := decimal.NewFromString(tokens[i])
			if isUnit && err == nil {
				qty, unit, qtyAt, qtyLen = q, u, i, 2
				i++
			}
		}
	}

	var nameTokens []string
	for i, tok := range tokens {
		if qtyAt >= 0 && i >= qtyAt && i < qtyAt+qtyLen {
			continue
		}
		nameTokens = append(nameTokens, tok)
	}
	if len(nameTokens) == 0 {
		return nil, fmt.Errorf("no item name in line: %q", raw)
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("non-positive quantity in line: %q", raw)
	}

	return &Line{
		RawText:  raw,
		Name:     strings.Join(nameTokens, " "),
		Quantity: qty,
		Unit:     unit,
	}, nil
}

// parseQtyUnitToken parses "10bags" → (10, "BAGS", true). Only matches known units.
func parseQtyUnitToken(tok string) (decimal.Decimal, string, bool) {
	tok = strings.ToLower(tok)

	// Find boundary between digits and letters
	digitEnd := 0
	for i, r := range tok {
		if unicode.IsDigit(r) || r == '.' {
			digitEnd = i + 1
		} else {
			break
		}
	}

	if digitEnd == 0 || digitEnd == len(tok) {
		return decimal.Zero, "", false
	}

	unit, ok := unitAliases[tok[digitEnd:]]
	if !ok {
		return decimal.Zero, "", false
	}

	qty, err := decimal.NewFromString(tok[:digitEnd])
	if err != nil {
		return decimal.Zero, "", false
	}

	return qty, unit, true
}
