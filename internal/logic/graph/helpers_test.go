package graph

import "reachtracker.dev/internal/logic/rules"

// mustCompile is a test helper that compiles src and panics on error.
func mustCompile(src string) *rules.Expr {
	e, err := rules.Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}
