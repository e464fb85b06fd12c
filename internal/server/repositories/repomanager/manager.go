package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/hiresify/internal/dbx"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle or a transaction,
// so services can run several repository calls in one dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
