package query

// Expr is the common interface for every expression node a query
// compiles a predicate, projection, or order-by term into.
type Expr interface {
	exprNode()
}

// IdentExpr is a bare top-level field name.
type IdentExpr struct {
	Name string
}

func (e *IdentExpr) exprNode() {}

// PathExpr is a dotted field path ("a.b.c"), with "*"/"**" components
// resolved as a direct-children or deep wildcard the way Document paths do.
type PathExpr struct {
	Parts []string
}

func (e *PathExpr) exprNode() {}

// LiteralExpr is a literal scalar (string, int, float, bool, null).
type LiteralExpr struct {
	Token Token
}

func (e *LiteralExpr) exprNode() {}

// ParamExpr is a ? placeholder, resolved against the query's parameter
// list at evaluation time.
type ParamExpr struct {
	Index int
}

func (e *ParamExpr) exprNode() {}

// BinaryExpr is a binary comparison, logical, or arithmetic expression.
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

func (e *BinaryExpr) exprNode() {}

// NotExpr is a logical negation.
type NotExpr struct {
	Expr Expr
}

func (e *NotExpr) exprNode() {}

// IsNullExpr is `expr IS [NOT] NULL`.
type IsNullExpr struct {
	Expr   Expr
	Negate bool
}

func (e *IsNullExpr) exprNode() {}

// LikeExpr is `expr [NOT] LIKE "pattern"`, pattern using SQL-style %/_ wildcards.
type LikeExpr struct {
	Expr    Expr
	Pattern string
	Negate  bool
}

func (e *LikeExpr) exprNode() {}

// BetweenExpr is `expr [NOT] BETWEEN low AND high`.
type BetweenExpr struct {
	Expr   Expr
	Low    Expr
	High   Expr
	Negate bool
}

func (e *BetweenExpr) exprNode() {}

// InExpr is `expr [NOT] IN (values...)`.
type InExpr struct {
	Expr   Expr
	Values []Expr
	Negate bool
}

func (e *InExpr) exprNode() {}

// ArrayLiteralExpr is a literal array `[a, b, c]`.
type ArrayLiteralExpr struct {
	Elements []Expr
}

func (e *ArrayLiteralExpr) exprNode() {}

// FuncCallExpr is an operator or function application: MAP, FILTER,
// COUNT, SUM, AVG, MIN, MAX, ANY, ALL, the SPATIAL_* predicates, and
// plain scalar functions (UPPER, LOWER, LENGTH, ...).
type FuncCallExpr struct {
	Name string
	Args []Expr
}

func (e *FuncCallExpr) exprNode() {}
