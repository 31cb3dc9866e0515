package domain

import "time"

// ParamKind tags the variant held by a QueryParam. Its values are not the
// wire codes used by tx_execute_query/tx_execute_upsert (0=Null, 1=Bool,
// 2=Number, 3=String, 4=Date); DecodeParamKind maps those codes to a
// ParamKind, and no wire code maps to ParamFloat.
type ParamKind int

const (
	ParamNull ParamKind = iota
	ParamBool
	ParamNumber
	ParamFloat
	ParamString
	ParamDate
)

// QueryParam is the wire type between scripts and the SQL driver. Exactly
// one of the typed fields is meaningful, selected by Kind.
type QueryParam struct {
	Kind   ParamKind
	Bool   bool
	Number int64
	Float  float64
	String string
	Date   time.Time
}

// SQLValue renders p as the value pgx should bind. Date is always rendered
// in RFC3339 UTC before binding, regardless of the target column's native
// format.
func (p QueryParam) SQLValue() any {
	switch p.Kind {
	case ParamNull:
		return nil
	case ParamBool:
		return p.Bool
	case ParamNumber:
		return p.Number
	case ParamFloat:
		return p.Float
	case ParamString:
		return p.String
	case ParamDate:
		return p.Date.UTC().Format(time.RFC3339)
	default:
		return nil
	}
}

// DecodeParamKind maps the wire integer used by tx_execute_query's types[]
// array to a ParamKind. Unrecognized codes decode as ParamNull so a bad
// script never panics the driver.
func DecodeParamKind(code int) ParamKind {
	switch code {
	case 1:
		return ParamBool
	case 2:
		return ParamNumber
	case 3:
		return ParamString
	case 4:
		return ParamDate
	default:
		return ParamNull
	}
}

// QueryResult is the stringified result of a query: every cell has already
// been coerced to text by the transaction worker.
type QueryResult struct {
	Rows     [][]string
	RowNames []string
	RowTypes []string
}
