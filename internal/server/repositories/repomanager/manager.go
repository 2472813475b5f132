package repomanager

import (
	"context"
	"database/sql"

	"github.com/richmiles/in-the-event-of-my-death/internal/dbx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/capabilitytokens"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/challenges"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/secrets"
)

// RepositoryManager vends repositories bound to a *sql.DB or a *sql.Tx, so
// services choose the transaction scope per call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Secrets(db dbx.DBTX) secrets.Repository
	Challenges(db dbx.DBTX) challenges.Repository
	CapabilityTokens(db dbx.DBTX) capabilitytokens.Repository
}
