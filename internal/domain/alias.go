package domain

// AliasKind is an open string enum: Postgres is the only kind with a
// working TransactionWorker; anything else is accepted at the directory
// level and fails lazily, the first time a script touches it.
type AliasKind string

const (
	AliasPostgres AliasKind = "postgres"
)

// MainAlias is the synthetic alias every session opens at startup, forced
// to Postgres with the bootstrap connection string.
const MainAlias = "_main"

// AliasInfo is one row of the database alias directory (nino_database),
// plus the synthetic _main entry the session worker injects.
type AliasInfo struct {
	Alias            string
	Kind             AliasKind
	ConnectionString string
}

// Unsupported reports whether Kind names something other than Postgres.
// The session worker accepts the row regardless, and so does
// TransactionWorker construction; every request sent to that worker then
// fails with message "unsupported database kind: <tag>".
func (a AliasInfo) Unsupported() bool {
	return a.Kind != AliasPostgres
}
