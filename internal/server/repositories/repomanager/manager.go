package repomanager

import (
	"context"
	"database/sql"

	"github.com/trzyszczcms/authcore/internal/dbx"
	"github.com/trzyszczcms/authcore/internal/server/repositories/policies"
	"github.com/trzyszczcms/authcore/internal/server/repositories/roles"
	"github.com/trzyszczcms/authcore/internal/server/repositories/tokens"
	"github.com/trzyszczcms/authcore/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so that the same code
// runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Roles(db dbx.DBTX) roles.Repository
	Policies(db dbx.DBTX) policies.Repository
	Tokens(db dbx.DBTX) tokens.Repository
}
