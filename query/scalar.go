package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/litedb/litedb/bson"
)

func isScalarFuncName(name string) bool {
	switch name {
	case "UPPER", "LOWER", "TRIM", "LENGTH", "CONCAT", "ABS", "ROUND", "CEIL", "FLOOR", "COALESCE":
		return true
	}
	return false
}

func evalScalarFunc(fc *FuncCallExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	args := make([]bson.Value, len(fc.Args))
	for i, a := range fc.Args {
		v, err := Eval(a, doc, params, collation)
		if err != nil {
			return bson.Value{}, err
		}
		args[i] = v
	}

	switch fc.Name {
	case "UPPER":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if args[0].T != bson.TypeString {
			return bson.Null(), nil
		}
		return bson.String(strings.ToUpper(args[0].Str)), nil

	case "LOWER":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if args[0].T != bson.TypeString {
			return bson.Null(), nil
		}
		return bson.String(strings.ToLower(args[0].Str)), nil

	case "TRIM":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if args[0].T != bson.TypeString {
			return bson.Null(), nil
		}
		return bson.String(strings.TrimSpace(args[0].Str)), nil

	case "LENGTH":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if args[0].T != bson.TypeString {
			return bson.Null(), nil
		}
		return bson.Int32(int32(len([]rune(args[0].Str)))), nil

	case "CONCAT":
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(a.String())
		}
		return bson.String(sb.String()), nil

	case "ABS":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if !args[0].IsNumeric() {
			return bson.Null(), nil
		}
		return bson.Double(math.Abs(args[0].AsFloat64())), nil

	case "ROUND":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if !args[0].IsNumeric() {
			return bson.Null(), nil
		}
		return bson.Double(math.Round(args[0].AsFloat64())), nil

	case "CEIL":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if !args[0].IsNumeric() {
			return bson.Null(), nil
		}
		return bson.Double(math.Ceil(args[0].AsFloat64())), nil

	case "FLOOR":
		if err := checkArgs(fc.Name, args, 1); err != nil {
			return bson.Value{}, err
		}
		if !args[0].IsNumeric() {
			return bson.Null(), nil
		}
		return bson.Double(math.Floor(args[0].AsFloat64())), nil

	case "COALESCE":
		for _, a := range args {
			if a.T != bson.TypeNull {
				return a, nil
			}
		}
		return bson.Null(), nil
	}
	return bson.Value{}, fmt.Errorf("query: unknown scalar function %s", fc.Name)
}

func checkArgs(name string, args []bson.Value, want int) error {
	if len(args) != want {
		return fmt.Errorf("query: %s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}
