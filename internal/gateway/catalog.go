package gateway

import (
	"context"
	"database/sql"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/model"
)

// ListTables returns every base table outside the catalog and
// information_schema namespaces, ordered by (schema, name), with column
// count and comment (spec §4.1).
func (g *Gateway) ListTables(ctx context.Context) ([]model.TableInfo, error) {
	var out []model.TableInfo
	err := g.withRead(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT
				t.table_schema,
				t.table_name,
				COALESCE(
					(SELECT COUNT(*) FROM information_schema.columns c
					 WHERE c.table_schema = t.table_schema
					 AND c.table_name = t.table_name),
					0
				) as column_count,
				COALESCE(obj_description(
					(quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass
				), '') as table_comment
			FROM information_schema.tables t
			WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
			AND t.table_type = 'BASE TABLE'
			ORDER BY t.table_schema, t.table_name
		`)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "listTables", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ti model.TableInfo
			if err := rows.Scan(&ti.Schema, &ti.Name, &ti.ColumnCount, &ti.Comment); err != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "listTables scan", err)
			}
			out = append(out, ti)
		}
		return rows.Err()
	})
	return out, err
}

// ListColumns returns the columns of schema.table ordered by ordinal
// position, flagging primary-key membership.
func (g *Gateway) ListColumns(ctx context.Context, schema, table string) ([]model.ColumnInfo, error) {
	var out []model.ColumnInfo
	err := g.withRead(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT
				c.column_name,
				c.data_type,
				c.is_nullable,
				c.column_default,
				c.ordinal_position,
				CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END as is_primary_key
			FROM information_schema.columns c
			LEFT JOIN (
				SELECT kcu.column_name
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = $1
				AND tc.table_name = $2
			) pk ON c.column_name = pk.column_name
			WHERE c.table_schema = $1 AND c.table_name = $2
			ORDER BY c.ordinal_position
		`, schema, table)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "listColumns", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ci model.ColumnInfo
			var isNullable string
			var def sql.NullString
			if err := rows.Scan(&ci.Name, &ci.DataType, &isNullable, &def, &ci.Ordinal, &ci.IsPrimaryKey); err != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "listColumns scan", err)
			}
			ci.IsNullable = isNullable == "YES"
			if def.Valid {
				v := def.String
				ci.DefaultValue = &v
			}
			out = append(out, ci)
		}
		return rows.Err()
	})
	return out, err
}

// ListForeignKeys returns every foreign key constraint across all
// non-system schemas.
func (g *Gateway) ListForeignKeys(ctx context.Context) ([]model.ForeignKeyInfo, error) {
	var out []model.ForeignKeyInfo
	err := g.withRead(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT
				tc.constraint_name,
				tc.table_schema as from_schema,
				tc.table_name as from_table,
				kcu.column_name as from_column,
				ccu.table_schema as to_schema,
				ccu.table_name as to_table,
				ccu.column_name as to_column,
				rc.delete_rule as on_delete,
				rc.update_rule as on_update
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_name = ccu.constraint_name
				AND tc.table_schema = ccu.table_schema
			JOIN information_schema.referential_constraints rc
				ON tc.constraint_name = rc.constraint_name
				AND tc.table_schema = rc.constraint_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY tc.table_schema, tc.table_name, tc.constraint_name
		`)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "listForeignKeys", err)
		}
		defer rows.Close()

		for rows.Next() {
			var fk model.ForeignKeyInfo
			if err := rows.Scan(&fk.ConstraintName, &fk.FromSchema, &fk.FromTable, &fk.FromColumn,
				&fk.ToSchema, &fk.ToTable, &fk.ToColumn, &fk.OnDelete, &fk.OnUpdate); err != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "listForeignKeys scan", err)
			}
			out = append(out, fk)
		}
		return rows.Err()
	})
	return out, err
}

// TableStats returns cumulative insert/update/delete tuple counters and
// last-vacuum timestamps sourced from pg_stat_user_tables.
func (g *Gateway) TableStats(ctx context.Context) ([]model.TableStats, error) {
	var out []model.TableStats
	err := g.withRead(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT
				schemaname::text as schema,
				relname::text as table_name,
				COALESCE(n_tup_ins, 0) as n_tup_ins,
				COALESCE(n_tup_upd, 0) as n_tup_upd,
				COALESCE(n_tup_del, 0) as n_tup_del,
				last_vacuum::text,
				last_autovacuum::text
			FROM pg_stat_user_tables
			WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
			ORDER BY schemaname, relname
		`)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "tableStats", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ts model.TableStats
			var lastVacuum, lastAutovacuum sql.NullString
			if err := rows.Scan(&ts.Schema, &ts.Table, &ts.InsertCount, &ts.UpdateCount, &ts.DeleteCount,
				&lastVacuum, &lastAutovacuum); err != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "tableStats scan", err)
			}
			if lastVacuum.Valid {
				v := lastVacuum.String
				ts.LastVacuum = &v
			}
			if lastAutovacuum.Valid {
				v := lastAutovacuum.String
				ts.LastAutovacuum = &v
			}
			out = append(out, ts)
		}
		return rows.Err()
	})
	return out, err
}

// PrimaryKeyColumns returns the ordered primary-key column list for
// schema.table. May be empty.
func (g *Gateway) PrimaryKeyColumns(ctx context.Context, schema, table string) ([]string, error) {
	var out []string
	err := g.withRead(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
			ORDER BY kcu.ordinal_position
		`, schema, table)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "primaryKeyColumns", err)
		}
		defer rows.Close()

		for rows.Next() {
			var col string
			if err := rows.Scan(&col); err != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "primaryKeyColumns scan", err)
			}
			out = append(out, col)
		}
		return rows.Err()
	})
	return out, err
}
