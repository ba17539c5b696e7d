// Package all registers every export backend with the storage registry.
package all

import (
	_ "tabular/internal/storage/mssql"
	_ "tabular/internal/storage/postgres"
	_ "tabular/internal/storage/sqlite"
)
