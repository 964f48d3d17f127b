package postgres

// rowScanner is implemented by both pgx.Row and pgx.Rows — lets scan
// helpers work uniformly across QueryRow and Query call sites.
type rowScanner interface {
	Scan(dest ...any) error
}
