package formula

// expr is a parsed formula expression node.
type expr interface {
	pos() int
}

type numberLit struct {
	off int
	val float64
}

type stringLit struct {
	off int
	val string
}

type boolLit struct {
	off int
	val bool
}

// refExpr is a column reference with an optional postfix field path:
// [Status] or [CriarCliente].new_id or [trigger.body].customer.
type refExpr struct {
	off  int
	name string   // content between the brackets
	path []string // postfix .field segments, may be empty
}

type callExpr struct {
	off  int
	name string
	args []expr
}

type binaryExpr struct {
	off         int
	op          tokenKind
	left, right expr
}

type unaryExpr struct {
	off     int
	op      tokenKind
	operand expr
}

func (e *numberLit) pos() int  { return e.off }
func (e *stringLit) pos() int  { return e.off }
func (e *boolLit) pos() int    { return e.off }
func (e *refExpr) pos() int    { return e.off }
func (e *callExpr) pos() int   { return e.off }
func (e *binaryExpr) pos() int { return e.off }
func (e *unaryExpr) pos() int  { return e.off }

// fullName returns the dotted symbol the reference resolves against,
// e.g. "CriarCliente.new_id" for [CriarCliente].new_id.
func (e *refExpr) fullName() string {
	name := e.name
	for _, p := range e.path {
		name += "." + p
	}
	return name
}
