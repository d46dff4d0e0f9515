package boundary

import (
	"io"
	"net/http"
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// handleQueryTables is the auxiliary, informational table-name
// extractor (SPEC_FULL.md's supplemented ExtractTableNames endpoint):
// it parses the posted SQL and reports the relation names
// ExtractTableNames finds in it. It never gates dry-run safety — dry-run's own rejection
// check stands on its own.
func (s *Session) handleQueryTables(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	names, err := ExtractTableNames(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tables": names})
}

// ExtractTableNames parses statement and returns the relation names it
// finds, schema-qualified where given, deduplicated and sorted. It looks
// at SELECT FROM clauses (including joins, FROM-clause subqueries, CTE
// bodies and set-operation branches), the target and source SELECT of
// INSERT, and the target plus FROM/USING list of UPDATE and DELETE.
// Subqueries elsewhere (WHERE, select list) and the WITH clauses of
// INSERT, UPDATE and DELETE are not searched, and a FROM reference to a
// CTE name is reported like a table name.
func ExtractTableNames(statement string) ([]string, error) {
	tree, err := pg_query.Parse(statement)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, raw := range tree.GetStmts() {
		walkStmt(raw.GetStmt(), seen)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func addRangeVar(rv *pg_query.RangeVar, seen map[string]struct{}) {
	if rv == nil {
		return
	}
	name := rv.GetRelname()
	if sch := rv.GetSchemaname(); sch != "" {
		name = sch + "." + name
	}
	seen[name] = struct{}{}
}

func walkFromClause(from []*pg_query.Node, seen map[string]struct{}) {
	for _, n := range from {
		switch {
		case n.GetRangeVar() != nil:
			addRangeVar(n.GetRangeVar(), seen)
		case n.GetJoinExpr() != nil:
			je := n.GetJoinExpr()
			walkFromClause([]*pg_query.Node{je.GetLarg()}, seen)
			walkFromClause([]*pg_query.Node{je.GetRarg()}, seen)
		case n.GetRangeSubselect() != nil:
			if sub := n.GetRangeSubselect().GetSubquery(); sub != nil {
				walkSelect(sub.GetSelectStmt(), seen)
			}
		}
	}
}

func walkSelect(sel *pg_query.SelectStmt, seen map[string]struct{}) {
	if sel == nil {
		return
	}
	walkFromClause(sel.GetFromClause(), seen)
	if wc := sel.GetWithClause(); wc != nil {
		for _, cteNode := range wc.GetCtes() {
			if cte := cteNode.GetCommonTableExpr(); cte != nil {
				walkSelect(cte.GetCtequery().GetSelectStmt(), seen)
			}
		}
	}
	walkSelect(sel.GetLarg(), seen)
	walkSelect(sel.GetRarg(), seen)
}

func walkStmt(node *pg_query.Node, seen map[string]struct{}) {
	if node == nil {
		return
	}
	switch {
	case node.GetSelectStmt() != nil:
		walkSelect(node.GetSelectStmt(), seen)
	case node.GetInsertStmt() != nil:
		ins := node.GetInsertStmt()
		addRangeVar(ins.GetRelation(), seen)
		if sel := ins.GetSelectStmt(); sel != nil {
			walkSelect(sel.GetSelectStmt(), seen)
		}
	case node.GetUpdateStmt() != nil:
		upd := node.GetUpdateStmt()
		addRangeVar(upd.GetRelation(), seen)
		walkFromClause(upd.GetFromClause(), seen)
	case node.GetDeleteStmt() != nil:
		del := node.GetDeleteStmt()
		addRangeVar(del.GetRelation(), seen)
		walkFromClause(del.GetUsingClause(), seen)
	}
}
