package dryrun

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"go.uber.org/zap"
)

// auditWithParser cross-checks rejectTransactionControl's substring scan
// against a structural parse: did the parser actually find a
// TransactionStmt node where the literal scan did (or didn't)? The
// parser's answer never changes the accept/reject decision — it is
// logged so a disagreement (a string match on a column literally named
// "begin_date", or a syntax form the substring scan missed) is visible
// without altering dry run's documented rejection rule.
func (e *Evaluator) auditWithParser(statement, literalReason string) {
	result, err := pg_query.Parse(statement)
	if err != nil {
		// Unparseable SQL is not itself a rejection reason; the
		// statement will fail naturally inside the transaction.
		return
	}

	parserSawTxnControl := false
	for _, raw := range result.GetStmts() {
		if raw.GetStmt().GetTransactionStmt() != nil {
			parserSawTxnControl = true
			break
		}
	}

	literalSawTxnControl := literalReason != ""
	if parserSawTxnControl != literalSawTxnControl {
		e.log.Warn("dry run rejection check disagreement",
			zap.Bool("parser_saw_transaction_control", parserSawTxnControl),
			zap.Bool("literal_scan_rejected", literalSawTxnControl),
		)
	}
}
