// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the user-table migrations. Files use the {{user_table}} placeholder
// (quoted identifier) and {{user_table_name}} (bare name, for index names).
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory within FS where migrations live.
const Dir = "sql"
