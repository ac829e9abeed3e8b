package dice

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		expr  string
		count int
		sides int
		mod   int
	}{
		{"2d6", 2, 6, 0},
		{"1d20", 1, 20, 0},
		{"d20", 1, 20, 0},
		{"3d8+2", 3, 8, 2},
		{"2d10-1", 2, 10, -1},
		{"2D6", 2, 6, 0},
		{" 2d6 + 1 ", 2, 6, 1},
		{"100d1000", 100, 1000, 0},
	}
	for _, tt := range tests {
		count, sides, mod, err := Parse(tt.expr)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.expr, err)
			continue
		}
		if count != tt.count || sides != tt.sides || mod != tt.mod {
			t.Errorf("Parse(%q) = (%d, %d, %d), expected (%d, %d, %d)",
				tt.expr, count, sides, mod, tt.count, tt.sides, tt.mod)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	exprs := []string{
		"",
		"banana",
		"2x6",
		"2d",
		"d",
		"2d6+",
		"2d6+x",
		"0d6",
		"-1d6",
		"101d6",   // over MaxDice
		"2d1",     // a one-sided die is a constant
		"2d1001",  // over MaxSides
	}
	for _, expr := range exprs {
		if _, _, _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error", expr)
		}
	}
}

func TestEvalTotalInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		roll, err := Eval("3d6+2")
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		if roll.Total < 5 || roll.Total > 20 {
			t.Fatalf("3d6+2 total %d out of [5, 20]", roll.Total)
		}
	}
}

func TestEvalNegativeModifier(t *testing.T) {
	for i := 0; i < 50; i++ {
		roll, err := Eval("1d4-2")
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		if roll.Total < -1 || roll.Total > 2 {
			t.Fatalf("1d4-2 total %d out of [-1, 2]", roll.Total)
		}
		if !strings.HasSuffix(roll.Detail, "-2") {
			t.Fatalf("expected detail to show the modifier, got %q", roll.Detail)
		}
	}
}

func TestEvalDetailListsEveryDie(t *testing.T) {
	roll, err := Eval("4d6")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	parts := strings.Split(roll.Detail, "+")
	if len(parts) != 4 {
		t.Fatalf("expected 4 dice in detail, got %q", roll.Detail)
	}
	sum := 0
	for _, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil {
			t.Fatalf("bad die term %q in %q", p, roll.Detail)
		}
		sum += v
	}
	if sum != roll.Total {
		t.Errorf("detail sums to %d, total is %d", sum, roll.Total)
	}
}

func TestRollResultFormat(t *testing.T) {
	r := Roll{Expr: "3d6", Total: 9, Detail: "3+5+1"}
	if got := r.Result(); got != "9 (3+5+1)" {
		t.Errorf("expected %q, got %q", "9 (3+5+1)", got)
	}
}

func TestEvalRejectsBadExpr(t *testing.T) {
	if _, err := Eval("banana"); err == nil {
		t.Fatal("expected error")
	}
}
