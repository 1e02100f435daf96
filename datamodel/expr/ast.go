package expr

import "strings"

// Node is an expression AST node.
type Node interface {
	node()
}

// Literal is a constant: int64, float64, string, bool or nil.
type Literal struct {
	Value any
}

// Path is a variable reference such as "order.items.0".
type Path struct {
	Segments []string
}

// String returns the dotted form of the path.
func (p *Path) String() string {
	return strings.Join(p.Segments, ".")
}

// Unary is "!x" or "-x".
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operation.
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

// Call is a function call.
type Call struct {
	Name string
	Args []Node
}

// List is a list literal "[a, b]".
type List struct {
	Items []Node
}

func (*Literal) node() {}
func (*Path) node() {}
func (*Unary) node() {}
func (*Binary) node() {}
func (*Call) node() {}
func (*List) node() {}

// Statement is one line of a script: an assignment when Target is set,
// otherwise an expression evaluated for its effects.
type Statement struct {
	Target *Path
	Value  Node
}
