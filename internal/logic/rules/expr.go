package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// Inventory is implemented by states that can hand their whole item
// multiset and reached-region set to an expression evaluator.
type Inventory interface {
	Items() map[string]int
	ReachedRegions() []string
}

// Expr is a rule written as a CEL expression. The expression sees two
// variables: items (map of item name to owned count) and regions (names of
// reached regions). Helpers: items.count("X") returns 0 for unowned items,
// items.owns("X") and items.owns("X", n). Item names passed to the helpers
// as string literals are checked like Has: an unknown one faults the rule.
// Names reached through indexing (items["X"]) are not checked.
//
//	items.owns("Hookshot") && "Lake" in regions
//	items.count("Heart Piece") >= 12
type Expr struct {
	Source string
	prg    cel.Program
	items  []string
}

var (
	envOnce sync.Once
	celEnv  *cel.Env
	envErr  error
)

func environment() (*cel.Env, error) {
	envOnce.Do(func() {
		itemsType := cel.MapType(cel.StringType, cel.IntType)
		celEnv, envErr = cel.NewEnv(
			cel.Variable("items", itemsType),
			cel.Variable("regions", cel.ListType(cel.StringType)),
			cel.Function("count",
				cel.MemberOverload("items_count_string",
					[]*cel.Type{itemsType, cel.StringType}, cel.IntType,
					cel.BinaryBinding(itemCount)),
			),
			cel.Function("owns",
				cel.MemberOverload("items_owns_string",
					[]*cel.Type{itemsType, cel.StringType}, cel.BoolType,
					cel.BinaryBinding(func(m, key ref.Val) ref.Val {
						return atLeast(m, key, types.Int(1))
					})),
				cel.MemberOverload("items_owns_string_int",
					[]*cel.Type{itemsType, cel.StringType, cel.IntType}, cel.BoolType,
					cel.FunctionBinding(func(args ...ref.Val) ref.Val {
						if len(args) != 3 {
							return types.NewErr("owns() takes an item name and an optional count")
						}
						return atLeast(args[0], args[1], args[2])
					})),
			),
		)
	})
	return celEnv, envErr
}

func itemCount(m, key ref.Val) ref.Val {
	mapper, ok := m.(traits.Mapper)
	if !ok {
		return types.MaybeNoSuchOverloadErr(m)
	}
	v, found := mapper.Find(key)
	if !found {
		return types.IntZero
	}
	return v
}

func atLeast(m, key, want ref.Val) ref.Val {
	have, ok := itemCount(m, key).(types.Int)
	if !ok {
		return types.NewErr("owns(): bad item count")
	}
	n, ok := want.(types.Int)
	if !ok {
		return types.MaybeNoSuchOverloadErr(want)
	}
	return types.Bool(have >= n)
}

// Compile parses and type-checks src. The expression must be boolean.
func Compile(src string) (*Expr, error) {
	env, err := environment()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, iss := env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", src, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must be boolean, got %s", src, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", src, err)
	}
	return &Expr{Source: src, prg: prg, items: helperItems(ast)}, nil
}

// helperItems lists the distinct string literals passed to count and owns.
func helperItems(ast *cel.Ast) []string {
	root := celast.NavigateAST(ast.NativeRep())
	calls := celast.MatchDescendants(root, func(e celast.NavigableExpr) bool {
		if e.Kind() != celast.CallKind {
			return false
		}
		name := e.AsCall().FunctionName()
		return name == "count" || name == "owns"
	})
	var out []string
	seen := map[string]bool{}
	for _, c := range calls {
		args := c.AsCall().Args()
		if len(args) == 0 || args[0].Kind() != celast.LiteralKind {
			continue
		}
		lit, ok := args[0].AsLiteral().(types.String)
		if !ok || seen[string(lit)] {
			continue
		}
		seen[string(lit)] = true
		out = append(out, string(lit))
	}
	return out
}

func (e *Expr) Eval(s State) (bool, error) {
	for _, it := range e.items {
		if !s.KnownItem(it) {
			return false, fmt.Errorf("%w: %q in %q", ErrUnknownItem, it, e.Source)
		}
	}
	inv, ok := s.(Inventory)
	if !ok {
		return false, fmt.Errorf("eval %q: state does not expose an inventory", e.Source)
	}
	counts := inv.Items()
	items := make(map[string]int64, len(counts))
	for k, v := range counts {
		if v > 0 {
			items[k] = int64(v)
		}
	}
	regions := inv.ReachedRegions()
	sort.Strings(regions)
	out, _, err := e.prg.Eval(map[string]any{
		"items":   items,
		"regions": regions,
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", e.Source, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("eval %q: non-boolean result %v", e.Source, out)
	}
	return bool(b), nil
}

func (e *Expr) String() string { return e.Source }

func (e *Expr) referencedItems() []string { return e.items }
