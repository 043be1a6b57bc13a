package store

import "errors"

var (
	// ErrStore wraps every failure reported by the underlying store.
	ErrStore = errors.New("store error")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStockConflict indicates a stock decrement matched no row at commit
	// time because another sale consumed the stock first.
	ErrStockConflict = errors.New("stock changed before commit")
	// ErrDuplicate indicates a unique key (such as a sale id) already exists.
	ErrDuplicate = errors.New("duplicate key")
)
