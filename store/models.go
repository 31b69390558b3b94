package store

// blockRow is the gorm model backing the blocks table. Field names follow
// types.Block; PublicKey/Signature columns are raw bytes rather than hex,
// matching the in-memory representation.
type blockRow struct {
	ID                   string `gorm:"primary_key;size:64"`
	Height               uint64 `gorm:"unique_index"`
	PreviousBlockID      string `gorm:"index;size:64"`
	Timestamp            uint64
	GeneratorPublicKey   []byte
	BlockSignature       []byte
	PayloadHash          string
	PayloadLength        uint64
	NumberOfTransactions int
	TotalAmount          uint64
	TotalFee             uint64
	Reward               uint64
}

func (blockRow) TableName() string { return "blocks" }

// transactionRow is the gorm model backing the transactions table.
// AssetData holds the serialized TransferAsset payload, the one asset
// type leasehold itself owns; other transaction types carry no asset
// payload here (they're validated and applied by handlers the embedding
// framework registers, not persisted state this store interprets).
type transactionRow struct {
	ID              string `gorm:"primary_key;size:64"`
	BlockID         string `gorm:"index;size:64"`
	Type            byte
	SenderPublicKey []byte
	SenderID        string `gorm:"index;size:64"`
	RecipientID     string `gorm:"index;size:64"`
	Amount          uint64
	Fee             uint64
	Timestamp       uint64
	Signature       []byte
	SignSignature   []byte
	SignaturesJSON  []byte
	AssetData       []byte
}

func (transactionRow) TableName() string { return "transactions" }

// accountRow is the gorm model backing the accounts table.
type accountRow struct {
	Address             string `gorm:"primary_key;size:64"`
	PublicKey           []byte
	Balance             int64
	UBalance            int64
	IsDelegate          bool `gorm:"index"`
	VoteWeight          int64
	Multimin            int
	Multilifetime       int
	MultisignaturesJSON []byte
}

func (accountRow) TableName() string { return "accounts" }

// roundRewardRow is the gorm model backing the round_rewards table: one
// row per (round, delegate address) settlement.
type roundRewardRow struct {
	Round   uint64 `gorm:"primary_key"`
	Address string `gorm:"primary_key;size:64"`
	Amount  uint64
}

func (roundRewardRow) TableName() string { return "round_rewards" }
