package rules

import "strings"

// Explanation is the truth table of a rule: one node per sub-expression
// for combinators, a single node for literal or opaque rules.
type Explanation struct {
	Rule     string        `json:"rule"`
	Result   Result        `json:"result"`
	Err      string        `json:"err,omitempty"`
	Children []Explanation `json:"children,omitempty"`
}

// Explainer is implemented by rules that can break their evaluation down.
type Explainer interface {
	Explain(s State) Explanation
}

// Explain evaluates r against s without short-circuiting so every
// sub-expression shows up in the result.
func Explain(r Rule, s State) Explanation {
	if r == nil {
		return Explanation{Rule: "true", Result: Satisfied}
	}
	if e, ok := r.(Explainer); ok {
		return e.Explain(s)
	}
	return single(r, s)
}

func single(r Rule, s State) Explanation {
	res, err := Evaluate(r, s)
	ex := Explanation{Rule: r.String(), Result: res}
	if err != nil {
		ex.Err = err.Error()
	}
	return ex
}

func withChildren(r Rule, s State, kids []Rule) Explanation {
	ex := single(r, s)
	ex.Children = make([]Explanation, 0, len(kids))
	for _, k := range kids {
		ex.Children = append(ex.Children, Explain(k, s))
	}
	return ex
}

func (a All) Explain(s State) Explanation { return withChildren(a, s, a) }

func (a Any) Explain(s State) Explanation { return withChildren(a, s, a) }

func (n Not) Explain(s State) Explanation { return withChildren(n, s, []Rule{n.Rule}) }

// Failing returns the leaf conditions that are not satisfied.
func (e Explanation) Failing() []Explanation {
	if len(e.Children) == 0 {
		if e.Result == Satisfied {
			return nil
		}
		return []Explanation{e}
	}
	var out []Explanation
	for _, c := range e.Children {
		out = append(out, c.Failing()...)
	}
	return out
}

// Lines renders the explanation as an indented checklist.
func (e Explanation) Lines() []string {
	var out []string
	var walk func(Explanation, int)
	walk = func(x Explanation, depth int) {
		line := strings.Repeat("    ", depth) + mark(x.Result) + " " + x.Rule
		if x.Err != "" {
			line += " (" + x.Err + ")"
		}
		out = append(out, line)
		for _, c := range x.Children {
			walk(c, depth+1)
		}
	}
	walk(e, 0)
	return out
}

func (e Explanation) String() string { return strings.Join(e.Lines(), "\n") }

func mark(r Result) string {
	switch r {
	case Satisfied:
		return "[x]"
	case Faulted:
		return "[!]"
	default:
		return "[ ]"
	}
}
