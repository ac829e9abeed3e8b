// Package dice parses and rolls tabletop dice expressions of the form
// NdS, NdS+M, or NdS-M (e.g. "2d6+1", "d20"). Roll results feed the
// campaign channel's dice events.
package dice

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	// MaxDice and MaxSides bound expressions so a client cannot request
	// an absurd roll.
	MaxDice  = 100
	MaxSides = 1000
)

// DefaultExpr is rolled when a request omits the expression.
const DefaultExpr = "1d20"

// Roll is the outcome of evaluating one dice expression.
type Roll struct {
	Expr   string // normalized expression
	Total  int
	Detail string // per-die breakdown, e.g. "3+5+1"
}

// Result formats the roll the way it appears in chat: "9 (3+5+1)".
func (r Roll) Result() string {
	return fmt.Sprintf("%d (%s)", r.Total, r.Detail)
}

// Parse validates an expression and returns count, sides, and modifier.
func Parse(expr string) (count, sides, mod int, err error) {
	norm := strings.ReplaceAll(strings.ToLower(expr), " ", "")
	dicePart := norm

	switch {
	case strings.Contains(norm, "+"):
		parts := strings.SplitN(norm, "+", 2)
		dicePart = parts[0]
		mod, err = strconv.Atoi(parts[1])
	case strings.Contains(norm, "-"):
		parts := strings.SplitN(norm, "-", 2)
		dicePart = parts[0]
		mod, err = strconv.Atoi(parts[1])
		mod = -mod
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("dice: bad modifier in %q", expr)
	}

	n, die, ok := strings.Cut(dicePart, "d")
	if !ok {
		return 0, 0, 0, fmt.Errorf("dice: %q is not of the form NdS", expr)
	}
	count = 1
	if n != "" {
		if count, err = strconv.Atoi(n); err != nil {
			return 0, 0, 0, fmt.Errorf("dice: bad die count in %q", expr)
		}
	}
	if sides, err = strconv.Atoi(die); err != nil {
		return 0, 0, 0, fmt.Errorf("dice: bad die size in %q", expr)
	}

	if count < 1 || count > MaxDice {
		return 0, 0, 0, fmt.Errorf("dice: die count must be 1-%d", MaxDice)
	}
	if sides < 2 || sides > MaxSides {
		return 0, 0, 0, fmt.Errorf("dice: die size must be 2-%d", MaxSides)
	}
	return count, sides, mod, nil
}

// Eval rolls an expression.
func Eval(expr string) (Roll, error) {
	count, sides, mod, err := Parse(expr)
	if err != nil {
		return Roll{}, err
	}

	total := mod
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		v := rand.IntN(sides) + 1
		total += v
		parts[i] = strconv.Itoa(v)
	}

	detail := strings.Join(parts, "+")
	if mod > 0 {
		detail += "+" + strconv.Itoa(mod)
	} else if mod < 0 {
		detail += strconv.Itoa(mod)
	}
	return Roll{Expr: expr, Total: total, Detail: detail}, nil
}
