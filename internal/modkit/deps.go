// Package modkit provides module wiring and core deps
package modkit

import (
	"repocrawl/internal/modkit/repokit"
	"repocrawl/internal/platform/config"
	"repocrawl/internal/platform/logger"
	"repocrawl/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log     logger.Logger
	Cfg     config.Conf
	DB      repokit.TxRunner
	Dialect store.Dialect
}

// FromStore builds Deps around an opened store
func FromStore(st *store.Store, cfg config.Conf) Deps {
	return Deps{Log: st.Log, Cfg: cfg, DB: st.DB, Dialect: st.Dialect}
}
