// Package options resolves lookup lists (positions, regions, items, suppliers,
// CSI codes) from the backing store. FetchAll walks fixed-size pages from
// offset zero and stops on a short page or once the reported total has been
// read. Any failed page aborts the walk and surfaces ErrFetchFailed; the cause
// is logged, never returned to the caller.
package options
