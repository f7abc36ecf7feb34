// Package ledger defines the connector a gateway uses to act on the ledger it
// fronts, and an in-memory ledger for tests and demos.
package ledger

import "context"

// Connector performs asset operations on one ledger. The state-changing
// operations return the claim issued by the ledger, which the gateway wraps in
// a signed proof.
type Connector interface {
	// Name is the DLT system identifier of the ledger.
	Name() string

	LockAsset(ctx context.Context, assetID string) ([]byte, error)
	UnlockAsset(ctx context.Context, assetID string) ([]byte, error)
	DeleteAsset(ctx context.Context, assetID string) ([]byte, error)
	CreateAsset(ctx context.Context, assetID string) ([]byte, error)

	AssetExists(ctx context.Context, assetID string) (bool, error)
}
