/*
formula.go - Restricted expression evaluator for custom-formula tariffs

PURPOSE:
  Evaluates the CustomFormula pricing model safely. The grammar is a tiny
  arithmetic subset, nothing is ever interpreted as code:

    expr   = term   { ("+" | "-") term }
    term   = unary  { ("*" | "/") unary }
    unary  = [ "-" ] factor
    factor = NUMBER | IDENT | "(" expr ")"

  Identifiers are restricted to consumption, rate and base_fee. Anything
  else fails with ErrFormulaEvaluation - a misconfigured tariff must
  never fabricate a price.

PRECISION:
  All arithmetic runs on decimal.Decimal. Division by zero is rejected
  rather than producing a non-finite value.

SEE ALSO:
  - tariff.go: CustomFormula model definition
  - pricing.go: Binds the variables and calls Evaluate
*/
package billing

import (
	"fmt"
	"unicode"

	"github.com/shopspring/decimal"
)

// FormulaVariables is the full identifier set a formula may reference.
var FormulaVariables = []string{"consumption", "rate", "base_fee"}

// EvaluateFormula evaluates a restricted arithmetic expression against the
// given variable bindings. Bindings outside FormulaVariables are ignored;
// a reference to an unbound or unknown identifier fails.
func EvaluateFormula(expression string, bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	p := &formulaParser{expression: expression, input: []rune(expression), bindings: bindings}
	value, err := p.parseExpr()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return decimal.Zero, p.errorf("unexpected character %q", p.input[p.pos])
	}
	return value, nil
}

// ValidateFormula checks an expression's syntax and identifiers without
// needing real consumption data. Used by rate-change validation.
func ValidateFormula(expression string) error {
	bindings := make(map[string]decimal.Decimal, len(FormulaVariables))
	for _, name := range FormulaVariables {
		// Bind 1 so validation does not trip over division by a variable.
		bindings[name] = decimal.NewFromInt(1)
	}
	_, err := EvaluateFormula(expression, bindings)
	return err
}

type formulaParser struct {
	expression string
	input      []rune
	pos        int
	bindings   map[string]decimal.Decimal
}

func (p *formulaParser) errorf(format string, args ...any) error {
	return &FormulaError{Expression: p.expression, Detail: fmt.Sprintf(format, args...)}
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *formulaParser) peek() (rune, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *formulaParser) parseExpr() (decimal.Decimal, error) {
	value, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		ch, ok := p.peek()
		if !ok || (ch != '+' && ch != '-') {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return decimal.Zero, err
		}
		if ch == '+' {
			value = value.Add(rhs)
		} else {
			value = value.Sub(rhs)
		}
	}
}

func (p *formulaParser) parseTerm() (decimal.Decimal, error) {
	value, err := p.parseUnary()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		ch, ok := p.peek()
		if !ok || (ch != '*' && ch != '/') {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return decimal.Zero, err
		}
		if ch == '*' {
			value = value.Mul(rhs)
		} else {
			if rhs.IsZero() {
				return decimal.Zero, p.errorf("division by zero")
			}
			value = value.Div(rhs)
		}
	}
}

func (p *formulaParser) parseUnary() (decimal.Decimal, error) {
	if ch, ok := p.peek(); ok && ch == '-' {
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return decimal.Zero, err
		}
		return value.Neg(), nil
	}
	return p.parseFactor()
}

func (p *formulaParser) parseFactor() (decimal.Decimal, error) {
	ch, ok := p.peek()
	if !ok {
		return decimal.Zero, p.errorf("unexpected end of expression")
	}
	switch {
	case ch == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return decimal.Zero, err
		}
		if next, ok := p.peek(); !ok || next != ')' {
			return decimal.Zero, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case unicode.IsDigit(ch) || ch == '.':
		return p.parseNumber()
	case unicode.IsLetter(ch) || ch == '_':
		return p.parseIdent()
	default:
		return decimal.Zero, p.errorf("unexpected character %q", ch)
	}
}

func (p *formulaParser) parseNumber() (decimal.Decimal, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	text := string(p.input[start:p.pos])
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, p.errorf("invalid number %q", text)
	}
	return value, nil
}

func (p *formulaParser) parseIdent() (decimal.Decimal, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsLetter(p.input[p.pos]) || unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '_') {
		p.pos++
	}
	name := string(p.input[start:p.pos])
	if !allowedIdentifier(name) {
		return decimal.Zero, p.errorf("unknown identifier %q", name)
	}
	value, bound := p.bindings[name]
	if !bound {
		return decimal.Zero, p.errorf("identifier %q has no bound value", name)
	}
	return value, nil
}

func allowedIdentifier(name string) bool {
	for _, allowed := range FormulaVariables {
		if name == allowed {
			return true
		}
	}
	return false
}
