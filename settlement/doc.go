// Package settlement owns auction state and the engine that settles it.
//
// An auction moves Created → Active → Ended → Settled or Cancelled. The
// engine consumes decoded, authenticated settlement outcomes and performs
// the only legal write of the Settled transition. Exactly-once application
// under duplicate callback delivery and concurrent manual settlement
// rides on a single store primitive: the atomic create-or-conflict insert
// of the SettlementRecord. Everything else — status update, winning-bid
// flag — happens only after winning that insert.
//
// Two Store implementations ship: an in-memory store for tests and
// single-process use, and a PostgreSQL store whose settlements primary
// key provides the conflict guarantee.
package settlement
