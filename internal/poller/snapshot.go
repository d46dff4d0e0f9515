package poller

import (
	"context"
	"encoding/json"

	"github.com/dbwatch/dbwatch/internal/gateway"
)

// fetchSnapshot fetches the current fingerprint-keyed row set for
// schema.table, capped at maxRows.
func fetchSnapshot(ctx context.Context, gw *gateway.Gateway, schema, table string, pkCols []string, maxRows int64) (map[string]json.RawMessage, int64, bool, error) {
	return gw.FingerprintRows(ctx, schema, table, pkCols, maxRows)
}
