package postgres

import "tabular/internal/storage"

func init() {
	storage.Register("postgres", New)
}
