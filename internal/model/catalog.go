package model

// TableInfo describes one base table returned by the DB Gateway's
// listTables catalog query.
type TableInfo struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	ColumnCount int    `json:"columnCount"`
	Comment     string `json:"comment"`
}

// ColumnInfo describes one column returned by listColumns, ordered by
// ordinal position.
type ColumnInfo struct {
	Name         string  `json:"name"`
	DataType     string  `json:"dataType"`
	IsNullable   bool    `json:"isNullable"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	Ordinal      int     `json:"ordinal"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
}

// ForeignKeyInfo describes one foreign key constraint.
type ForeignKeyInfo struct {
	ConstraintName string `json:"constraintName"`
	FromSchema     string `json:"fromSchema"`
	FromTable      string `json:"fromTable"`
	FromColumn     string `json:"fromColumn"`
	ToSchema       string `json:"toSchema"`
	ToTable        string `json:"toTable"`
	ToColumn       string `json:"toColumn"`
	OnDelete       string `json:"onDelete"`
	OnUpdate      string `json:"onUpdate"`
}

// TableStats carries the statistics-view tuple counters for one table.
type TableStats struct {
	Schema         string  `json:"schema"`
	Table          string  `json:"table"`
	InsertCount    int64   `json:"insertCount"`
	UpdateCount    int64   `json:"updateCount"`
	DeleteCount    int64   `json:"deleteCount"`
	LastVacuum     *string `json:"lastVacuum,omitempty"`
	LastAutovacuum *string `json:"lastAutovacuum,omitempty"`
}
