package sqlcheck

import (
	"context"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

var mysqlParsers = sync.Pool{New: func() any { return parser.New() }}

func parseMySQL(_ context.Context, sqlText string) (Analysis, error) {
	p := mysqlParsers.Get().(*parser.Parser)
	defer mysqlParsers.Put(p)

	stmts, _, err := p.ParseSQL(sqlText)
	if err != nil {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: err.Error()}
	}
	if len(stmts) == 0 {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: "no statement found"}
	}
	out := Analysis{Statements: len(stmts), ReadOnly: true}
	for _, stmt := range stmts {
		switch stmt.(type) {
		case *ast.SelectStmt, *ast.SetOprStmt:
		default:
			out.ReadOnly = false
		}
	}
	return out, nil
}
