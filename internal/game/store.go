package game

import "context"

// Store opens transactions against the persistent ledger and registry.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of reads and appends available inside one transaction.
// Lookups of a missing row return ErrNotFound.
type Tx interface {
	CreatePlayer(ctx context.Context, name, passwordHash string) (Player, error)
	Player(ctx context.Context, id int64) (Player, error)
	Players(ctx context.Context) ([]Player, error)

	AppendExchange(ctx context.Context, e Exchange) (Exchange, error)
	SumExchanges(ctx context.Context, f ExchangeFilter) (Amounts, error)
	Exchanges(ctx context.Context, f ExchangeFilter) ([]Exchange, error)

	LatestEnvConfig(ctx context.Context, key string) (EnvConfig, error)
	AppendEnvConfig(ctx context.Context, key, value string) (EnvConfig, error)

	CreateFirmType(ctx context.Context, ft FirmType) (FirmType, error)
	FirmType(ctx context.Context, id int64) (FirmType, error)
	FirmTypes(ctx context.Context) ([]FirmType, error)

	CreateFirm(ctx context.Context, f Firm) (Firm, error)
	Firm(ctx context.Context, id int64) (Firm, error)
	Firms(ctx context.Context) ([]Firm, error)
	NextLevel(ctx context.Context, firmID int64) (Firm, error)

	CreateOwnership(ctx context.Context, o FirmOwnership) (FirmOwnership, error)
	Ownerships(ctx context.Context, firmID int64) ([]FirmOwnership, error)

	CreateFirmCycle(ctx context.Context, c FirmCycle) (FirmCycle, error)
	FirmCycles(ctx context.Context, month int64) ([]FirmCycle, error)
	CreateFirmCycleFail(ctx context.Context, f FirmCycleFail) (FirmCycleFail, error)
	FirmCycleFails(ctx context.Context, month int64) ([]FirmCycleFail, error)

	// SettlementRecorded reports whether month has already been settled.
	SettlementRecorded(ctx context.Context, month int64) (bool, error)
	RecordSettlement(ctx context.Context, month int64, batchID string) error

	// ClaimIdempotency returns ErrDuplicateIdempotency when (action, key) was seen before.
	ClaimIdempotency(ctx context.Context, action, key string) error
}
