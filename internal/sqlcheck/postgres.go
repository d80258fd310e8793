package sqlcheck

import (
	"context"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

func parsePostgres(_ context.Context, sqlText string) (Analysis, error) {
	tree, err := pg_query.Parse(sqlText)
	if err != nil {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: err.Error()}
	}
	stmts := tree.GetStmts()
	if len(stmts) == 0 {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: "no statement found"}
	}
	out := Analysis{Statements: len(stmts), ReadOnly: true}
	for _, raw := range stmts {
		if !readOnlyPostgres(raw.GetStmt()) {
			out.ReadOnly = false
		}
	}
	return out, nil
}

// readOnlyPostgres accepts plain queries only: SELECT INTO, row locks and
// data-modifying CTEs all write.
func readOnlyPostgres(node *pg_query.Node) bool {
	sel := node.GetSelectStmt()
	if sel == nil || sel.GetIntoClause() != nil || len(sel.GetLockingClause()) > 0 {
		return false
	}
	for _, cte := range sel.GetWithClause().GetCtes() {
		if !readOnlyPostgres(cte.GetCommonTableExpr().GetCtequery()) {
			return false
		}
	}
	return true
}
