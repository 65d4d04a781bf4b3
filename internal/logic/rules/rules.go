// Package rules holds the access predicates attached to locations and
// connections. A rule is plain data evaluated against a read-only view of the
// collection state; it never mutates the state it is given.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Result is the tri-state outcome of a rule evaluation.
type Result uint8

const (
	Unsatisfied Result = iota
	Satisfied
	Faulted
)

func (r Result) String() string {
	switch r {
	case Satisfied:
		return "satisfied"
	case Faulted:
		return "faulted"
	default:
		return "unsatisfied"
	}
}

var (
	ErrUnknownItem     = errors.New("unknown item")
	ErrUnknownRegion   = errors.New("unknown region")
	ErrUnknownLocation = errors.New("unknown location")
	ErrPanic           = errors.New("rule panicked")
)

// State is the view of a collection state that rules read.
type State interface {
	Count(item string) int
	KnownItem(item string) bool
	RegionReached(name string) (reached, known bool)
	LocationReached(name string) (reached, known bool)
}

// Rule is an access predicate. Eval returns an error only for genuine
// faults (unknown references, broken expressions); an unmet requirement is
// (false, nil).
type Rule interface {
	Eval(s State) (bool, error)
	String() string
}

// Evaluate runs r against s and folds the outcome into a Result. A nil rule
// is always satisfied. Panics raised by opaque predicates are recovered and
// reported as Faulted.
func Evaluate(r Rule, s State) (res Result, err error) {
	if r == nil {
		return Satisfied, nil
	}
	defer func() {
		if p := recover(); p != nil {
			res, err = Faulted, fmt.Errorf("%w: %s: %v", ErrPanic, r.String(), p)
		}
	}()
	ok, err := r.Eval(s)
	switch {
	case err != nil:
		return Faulted, err
	case ok:
		return Satisfied, nil
	default:
		return Unsatisfied, nil
	}
}

func eval(r Rule, s State) (bool, error) {
	if r == nil {
		return true, nil
	}
	return r.Eval(s)
}

func ruleString(r Rule) string {
	if r == nil {
		return "true"
	}
	return r.String()
}

type constRule bool

func (c constRule) Eval(State) (bool, error) { return bool(c), nil }

func (c constRule) String() string {
	if c {
		return "true"
	}
	return "false"
}

var (
	Always Rule = constRule(true)
	Never  Rule = constRule(false)
)

// Has requires Count copies of Item. A Count of zero or less is always met.
type Has struct {
	Item  string
	Count int
}

func (h Has) Eval(s State) (bool, error) {
	if h.Count <= 0 {
		return true, nil
	}
	if !s.KnownItem(h.Item) {
		return false, fmt.Errorf("%w: %q", ErrUnknownItem, h.Item)
	}
	return s.Count(h.Item) >= h.Count, nil
}

func (h Has) String() string {
	if h.Count == 1 {
		return "has(" + h.Item + ")"
	}
	return "has(" + h.Item + ", " + strconv.Itoa(h.Count) + ")"
}

func (h Has) referencedItems() []string { return []string{h.Item} }

// CountOf requires the summed count of Items to reach Count.
type CountOf struct {
	Items []string
	Count int
}

func (c CountOf) Eval(s State) (bool, error) {
	if c.Count <= 0 {
		return true, nil
	}
	total := 0
	for _, it := range c.Items {
		if !s.KnownItem(it) {
			return false, fmt.Errorf("%w: %q", ErrUnknownItem, it)
		}
		total += s.Count(it)
		if total >= c.Count {
			return true, nil
		}
	}
	return false, nil
}

func (c CountOf) String() string {
	return "count_of([" + strings.Join(c.Items, ", ") + "]) >= " + strconv.Itoa(c.Count)
}

func (c CountOf) referencedItems() []string { return c.Items }

// HasAll is shorthand for All of one Has per item.
func HasAll(items ...string) Rule {
	out := make(All, 0, len(items))
	for _, it := range items {
		out = append(out, Has{Item: it, Count: 1})
	}
	return out
}

// HasAny is shorthand for Any of one Has per item.
func HasAny(items ...string) Rule {
	out := make(Any, 0, len(items))
	for _, it := range items {
		out = append(out, Has{Item: it, Count: 1})
	}
	return out
}

// All is satisfied when every child is. The empty All is satisfied.
type All []Rule

func (a All) Eval(s State) (bool, error) {
	for _, r := range a {
		ok, err := eval(r, s)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a All) String() string { return join([]Rule(a), " and ", "true") }

func (a All) children() []Rule { return a }

// Any is satisfied when at least one child is. The empty Any is not.
type Any []Rule

func (a Any) Eval(s State) (bool, error) {
	var firstErr error
	for _, r := range a {
		ok, err := eval(r, s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

func (a Any) String() string { return join([]Rule(a), " or ", "false") }

func (a Any) children() []Rule { return a }

type Not struct{ Rule Rule }

func (n Not) Eval(s State) (bool, error) {
	ok, err := eval(n.Rule, s)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n Not) String() string { return "not " + ruleString(n.Rule) }

func (n Not) children() []Rule { return []Rule{n.Rule} }

// Reach requires the named region to be reachable.
type Reach struct{ Region string }

func (r Reach) Eval(s State) (bool, error) {
	ok, known := s.RegionReached(r.Region)
	if !known {
		return false, fmt.Errorf("%w: %q", ErrUnknownRegion, r.Region)
	}
	return ok, nil
}

func (r Reach) String() string { return "reach(" + r.Region + ")" }

// ReachLocation requires the named location to be reachable.
type ReachLocation struct{ Location string }

func (r ReachLocation) Eval(s State) (bool, error) {
	ok, known := s.LocationReached(r.Location)
	if !known {
		return false, fmt.Errorf("%w: %q", ErrUnknownLocation, r.Location)
	}
	return ok, nil
}

func (r ReachLocation) String() string { return "reach_location(" + r.Location + ")" }

// Func wraps an opaque predicate supplied by a graph generator.
type Func struct {
	Name string
	Fn   func(State) bool
}

func (f Func) Eval(s State) (bool, error) {
	if f.Fn == nil {
		return false, fmt.Errorf("rule %s has no function", f.String())
	}
	return f.Fn(s), nil
}

func (f Func) String() string {
	if f.Name == "" {
		return "func"
	}
	return f.Name
}

func join(rs []Rule, sep, empty string) string {
	switch len(rs) {
	case 0:
		return empty
	case 1:
		return ruleString(rs[0])
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = ruleString(r)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

type parent interface{ children() []Rule }

type itemReferrer interface{ referencedItems() []string }

// Items lists the item names r refers to directly, in first-seen order.
// Opaque rules contribute nothing.
func Items(r Rule) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Rule)
	walk = func(r Rule) {
		if r == nil {
			return
		}
		if ir, ok := r.(itemReferrer); ok {
			for _, it := range ir.referencedItems() {
				if !seen[it] {
					seen[it] = true
					out = append(out, it)
				}
			}
		}
		if p, ok := r.(parent); ok {
			for _, c := range p.children() {
				walk(c)
			}
		}
	}
	walk(r)
	return out
}
