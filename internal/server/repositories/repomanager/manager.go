package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bizledger/internal/dbx"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/orders"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so that services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Orders(db dbx.DBTX) orders.Repository
}
