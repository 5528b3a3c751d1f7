package game

import "time"

// Action tags the reason an exchange was written.
type Action string

const (
	ActionInit           Action = "init"
	ActionBuild          Action = "build"
	ActionFirmCost       Action = "firmCost"
	ActionFirmProduction Action = "firmProduction"
	ActionTax            Action = "tax"
	ActionNTax           Action = "nTax"
	ActionInflation      Action = "inflation"
	ActionEat            Action = "eat"
	ActionTransfer       Action = "transfer"
)

type Player struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

type PlayerBalance struct {
	Player
	Balance Amounts `json:"balance_micros"`
}

// Exchange is one immutable ledger row. The receiver gains Received and the
// sender loses it; a nil side is the system.
type Exchange struct {
	ID          int64   `json:"id"`
	Month       int64   `json:"month"`
	Action      Action  `json:"action"`
	SenderID    *int64  `json:"sender_id,omitempty"`
	ReceiverID  *int64  `json:"receiver_id,omitempty"`
	FirmCycleID *int64  `json:"firm_cycle_id,omitempty"`
	BatchID     string  `json:"batch_id"`
	Received    Amounts `json:"received_micros"`
}

// ExchangeFilter narrows ledger queries. Zero fields match everything.
type ExchangeFilter struct {
	ReceiverID *int64
	SenderID   *int64
	SystemOnly bool
	Month      *int64
	Actions    []Action
}

type EnvConfig struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type FirmType struct {
	ID                   int64   `json:"id"`
	Name                 string  `json:"name"`
	Cost                 Amounts `json:"cost_micros"`
	MonthlyCost          Amounts `json:"monthly_cost_micros"`
	ProductionMean       Rates   `json:"production_mean"`
	ProductionStdDevPerc Rates   `json:"production_std_dev_perc"`
	BuildTimeMonths      int64   `json:"build_time_months"`
}

type Firm struct {
	ID              int64  `json:"id"`
	TypeID          int64  `json:"type_id"`
	Level           int64  `json:"level"`
	BuiltAtMonth    int64  `json:"built_at_month"`
	ActiveFromMonth int64  `json:"active_from_month"`
	PrevLevelID     *int64 `json:"prev_level_id,omitempty"`
}

type FirmOwnership struct {
	ID            int64   `json:"id"`
	FirmID        int64   `json:"firm_id"`
	PlayerID      int64   `json:"player_id"`
	OwnershipPerc float64 `json:"ownership_perc"`
	MonthlyCost   Amounts `json:"monthly_cost_micros"`
}

type FirmCycle struct {
	ID         int64   `json:"id"`
	Month      int64   `json:"month"`
	FirmTypeID int64   `json:"firm_type_id"`
	Production Amounts `json:"production_micros"`
}

type FirmCycleFail struct {
	ID          int64 `json:"id"`
	FirmID      int64 `json:"firm_id"`
	FirmCycleID int64 `json:"firm_cycle_id"`
}

// FirmView is one level of a firm chain with its owners.
type FirmView struct {
	Firm
	Ownerships []FirmOwnership `json:"ownerships"`
}

// FirmChain is a level-0 firm with every later level of the same chain.
type FirmChain struct {
	FirmView
	NextLevels []FirmView `json:"next_levels"`
}

type OwnershipInput struct {
	PlayerID      int64
	OwnershipPerc float64
	MonthlyCost   Amounts
	Payed         Amounts
}

type CreateFirmInput struct {
	TypeID         int64
	Ownerships     []OwnershipInput
	IdempotencyKey string
}

type UpgradeOwnershipInput struct {
	PlayerID    int64
	MonthlyCost Amounts
	Payed       Amounts
}

type UpgradeFirmInput struct {
	FirmID         int64
	Ownerships     []UpgradeOwnershipInput
	IdempotencyKey string
}

type TransferInput struct {
	SenderID       int64
	ReceiverID     int64
	Received       Amounts
	IdempotencyKey string
}

type PlayerAuth struct {
	PlayerID int64  `json:"player_id"`
	Password string `json:"password"`
}

type NextMonthInput struct {
	// ExpectedMonth, when set, must equal the current month or the run is rejected.
	ExpectedMonth *int64
}

// MonthCycles is what the firm registry recorded for one settled month.
type MonthCycles struct {
	Month  int64           `json:"month"`
	Cycles []FirmCycle     `json:"cycles"`
	Fails  []FirmCycleFail `json:"fails"`
}

// MonthReport summarizes one settled month.
type MonthReport struct {
	Month            int64       `json:"month"`
	BatchID          string      `json:"batch_id"`
	Players          int         `json:"players"`
	Cycles           []FirmCycle `json:"cycles"`
	ProducingFirmIDs []int64     `json:"producing_firm_ids"`
	FailedFirmIDs    []int64     `json:"failed_firm_ids"`
	TaxCollected     Amounts     `json:"tax_collected_micros"`
	TaxPerPlayer     Amounts     `json:"tax_per_player_micros"`
	InflationMode    string      `json:"inflation_mode"`
	Inflation        Amounts     `json:"inflation_per_player_micros"`
	EatAmount        int64       `json:"eat_amount_micros"`
	SettledAt        time.Time   `json:"settled_at"`
}

// Seed is the starting catalog applied by Init.
type Seed struct {
	FirmTypes []FirmType
	EnvConfig []EnvConfig
}

type InitReport struct {
	FirmTypesCreated int `json:"firm_types_created"`
	ConfigKeysSet    int `json:"config_keys_set"`
}
