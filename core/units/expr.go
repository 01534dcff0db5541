package units

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/convertkit/core/errors"
)

// Expr is a parsed conversion expression such as "12.5 kg to lb".
type Expr struct {
	Value float64 `json:"value"`
	From  string  `json:"from"`
	To    string  `json:"to"`
}

// ExprResult is the evaluated form of an Expr.
type ExprResult struct {
	Expr
	Result float64 `json:"result"`
	Text   string  `json:"text"`
	Mode   string  `json:"mode"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type exprGrammar struct {
	Value float64 `@Number`
	From  string  `@Unit`
	Sep   string  `@( "to" | "in" | "->" )`
	To    string  `@Unit`
}

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Arrow", Pattern: `->`},
	{Name: "Number", Pattern: `[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Unit", Pattern: `[A-Za-z][A-Za-z0-9_]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var exprParser = participle.MustBuild[exprGrammar](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
)

// ParseExpr parses "<number> <unit> to|in|-> <unit>". Unit tags are
// case-sensitive, matching the table.
func ParseExpr(s string) (*Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.NewParse("expression", s, "empty expression")
	}

	parsed, err := exprParser.ParseString("", s)
	if err != nil {
		return nil, &errors.ParseError{Format: "expression", Input: s, Message: err.Error(), Err: err}
	}

	return &Expr{Value: parsed.Value, From: parsed.From, To: parsed.To}, nil
}

// EvalExpr parses and evaluates an expression.
func EvalExpr(s string, mode Mode) (*ExprResult, error) {
	expr, err := ParseExpr(s)
	if err != nil {
		return nil, err
	}

	v, ok := Convert(expr.Value, expr.From, expr.To)
	if !ok {
		return nil, errors.NewUnsupported("unit pair", expr.From+" -> "+expr.To)
	}

	v = mode.Apply(v)
	return &ExprResult{
		Expr:   *expr,
		Result: v,
		Text:   Format(v, Raw),
		Mode:   mode.String(),
	}, nil
}
