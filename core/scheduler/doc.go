// Package scheduler orchestrates the scheduling pipeline: horizon
// resolution, belief snapshotting at a fixed cutoff, problem construction,
// rolling-horizon solving, and assembly of the result back into the belief
// store. Long windows are committed in rolling sub-horizons, each solved
// with lookahead over the remaining window and chained to the next by the
// exact solved stored-energy state, so chunking neither drifts nor loses
// sight of later price structure.
package scheduler
