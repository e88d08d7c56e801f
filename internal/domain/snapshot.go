package domain

import (
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when no durable state exists for a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot kinds
const (
	SnapshotKindAccount  = "account"
	SnapshotKindGiftCard = "giftcard"
	SnapshotKindDrawer   = "drawer"
)

// Snapshot is an entity's full durable state, written wholesale on every
// mutating operation. There are no partial-field updates at the storage
// layer.
type Snapshot struct {
	Kind      string
	ID        string
	State     []byte
	Version   int64
	UpdatedAt time.Time
}
