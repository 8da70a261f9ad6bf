package repository

import (
	"github.com/lunasched/lunasched/internal/ledger"
)

// WindowStore is exactly internal/ledger.Store: the Postgres implementation
// backs Claim with a unique constraint on (job_name, window_key) and a
// single insert statement, matching the teacher's ClaimAndFire transactional
// pattern. Aliased here so every M1 store interface lives in one package.
type WindowStore = ledger.Store
