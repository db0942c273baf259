package attendance

import "context"

// RecordStore persists successful check-ins. Insert must be atomic
// insert-if-absent on the record key: of concurrent inserts for one key
// exactly one succeeds and the rest get ErrRecordExists.
type RecordStore interface {
	Get(ctx context.Context, key RecordKey) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
}

// BindingStore persists device bindings. Bind is insert-if-absent keyed by
// participant and returns ErrBindingExists when a binding is already held.
type BindingStore interface {
	GetBinding(ctx context.Context, participantID string) (*DeviceBinding, error)
	Bind(ctx context.Context, b *DeviceBinding) error
}
