package chain

import (
	"crypto/ed25519"
	"strconv"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/types"
)

// The Args/Result types below are the typed request/response shapes of
// the module action surface: RegisterActions wires one channel.Handle
// entry per action, each decoding args into its Args type and adapting
// the matching Chain method's return into the action's Result type.

// CalculateSupplyArgs is calculateSupply's request.
type CalculateSupplyArgs struct{ Height uint64 }

// CalculateMilestoneArgs is calculateMilestone's request.
type CalculateMilestoneArgs struct{ Height uint64 }

// CalculateRewardArgs is calculateReward's request.
type CalculateRewardArgs struct{ Height uint64 }

// GenerateDelegateListArgs is generateDelegateList's request. Source is
// the replay/rebuild override hook; nil uses the top-voted lookup.
type GenerateDelegateListArgs struct {
	Round  uint64
	Source []ed25519.PublicKey
}

// UpdateForgingStatusArgs is updateForgingStatus's request.
type UpdateForgingStatusArgs struct {
	PublicKeyHex string
	Password     string
	Forging      bool
}

// UpdateForgingStatusResult is updateForgingStatus's response.
type UpdateForgingStatusResult struct{ Status bool }

// GetTransactionsFromPoolArgs is getTransactionsFromPool's request. Type
// is a types.TransactionType, or -1 for any type. A nil Filter accepts
// every pooled transaction of that type.
type GetTransactionsFromPoolArgs struct {
	Type   int
	Filter func(*types.Transaction) bool
}

// PostTransactionArgs is postTransaction's request.
type PostTransactionArgs struct{ Transaction *types.Transaction }

// PostTransactionResult is postTransaction's response.
type PostTransactionResult struct {
	Success       bool
	TransactionID string
}

// BlocksArgs is the blocks action's request.
type BlocksArgs struct{ LastBlockID string }

// BlocksResult is the blocks action's response.
type BlocksResult struct {
	Success bool
	Blocks  []*types.Block
}

// BlocksCommonArgs is blocksCommon's request.
type BlocksCommonArgs struct{ CandidateIDs []string }

// BlocksCommonResult is blocksCommon's response.
type BlocksCommonResult struct {
	Success bool
	Common  string
}

// GetTransactionsResult is getTransactions' response.
type GetTransactionsResult struct {
	Success      bool
	Transactions []*types.Transaction
}

// GetSlotNumberArgs is getSlotNumber's request. EpochTime zero means now.
type GetSlotNumberArgs struct{ EpochTime uint64 }

// CalcSlotRoundArgs is calcSlotRound's request.
type CalcSlotRoundArgs struct{ Height uint64 }

// GetMultisigWalletMembersArgs is getMultisigWalletMembers's request.
type GetMultisigWalletMembersArgs struct{ WalletAddress string }

// GetMinMultisigRequiredSignaturesArgs is getMinMultisigRequiredSignatures's request.
type GetMinMultisigRequiredSignaturesArgs struct{ WalletAddress string }

// WalletTransactionsArgs is the shared request shape of
// getInboundTransactions and getOutboundTransactions.
type WalletTransactionsArgs struct {
	WalletAddress string
	FromTimestamp uint64
	Limit         int
}

// WalletTransactionsFromBlockArgs is the shared request shape of
// getInboundTransactionsFromBlock and getOutboundTransactionsFromBlock.
type WalletTransactionsFromBlockArgs struct {
	WalletAddress string
	BlockID       string
}

// GetLastBlockAtTimestampArgs is getLastBlockAtTimestamp's request.
type GetLastBlockAtTimestampArgs struct{ Timestamp uint64 }

// GetBlocksBetweenHeightsArgs is getBlocksBetweenHeights's request.
type GetBlocksBetweenHeightsArgs struct {
	FromHeight uint64
	ToHeight   uint64
	Limit      int
}

// GetBlockAtHeightArgs is getBlockAtHeight's request.
type GetBlockAtHeightArgs struct{ Height uint64 }

// RegisterActions wires every module action the host channel exposes
// (spec.md §6) onto channel, dispatching to c's already-wired
// components. Called from Boot once the channel collaborator is known.
func (c *Chain) RegisterActions(channel HostChannel) {
	channel.Handle("calculateSupply", func(args interface{}) (interface{}, error) {
		a, ok := args.(CalculateSupplyArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("calculateSupply: malformed args", nil)
		}
		return strconv.FormatUint(c.CalculateSupply(a.Height), 10), nil
	})

	channel.Handle("calculateMilestone", func(args interface{}) (interface{}, error) {
		a, ok := args.(CalculateMilestoneArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("calculateMilestone: malformed args", nil)
		}
		return c.CalculateMilestone(a.Height), nil
	})

	channel.Handle("calculateReward", func(args interface{}) (interface{}, error) {
		a, ok := args.(CalculateRewardArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("calculateReward: malformed args", nil)
		}
		return strconv.FormatUint(c.CalculateReward(a.Height), 10), nil
	})

	channel.Handle("generateDelegateList", func(args interface{}) (interface{}, error) {
		a, ok := args.(GenerateDelegateListArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("generateDelegateList: malformed args", nil)
		}
		return c.GenerateDelegateList(a.Round, a.Source)
	})

	channel.Handle("updateForgingStatus", func(args interface{}) (interface{}, error) {
		a, ok := args.(UpdateForgingStatusArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("updateForgingStatus: malformed args", nil)
		}
		status, err := c.UpdateForgingStatus(a.PublicKeyHex, a.Password, a.Forging)
		if err != nil {
			return nil, err
		}
		return UpdateForgingStatusResult{Status: status}, nil
	})

	channel.Handle("getForgingStatusForAllDelegates", func(args interface{}) (interface{}, error) {
		return c.GetForgingStatusForAllDelegates(), nil
	})

	channel.Handle("getTransactions", func(args interface{}) (interface{}, error) {
		return GetTransactionsResult{Success: true, Transactions: c.GetTransactions()}, nil
	})

	channel.Handle("getTransactionsFromPool", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetTransactionsFromPoolArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getTransactionsFromPool: malformed args", nil)
		}
		filter := a.Filter
		if filter == nil {
			filter = func(*types.Transaction) bool { return true }
		}
		return c.GetTransactionsFromPool(a.Type, filter), nil
	})

	channel.Handle("postTransaction", func(args interface{}) (interface{}, error) {
		a, ok := args.(PostTransactionArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("postTransaction: malformed args", nil)
		}
		id, err := c.PostTransaction(a.Transaction)
		if err != nil {
			return nil, err
		}
		return PostTransactionResult{Success: true, TransactionID: id}, nil
	})

	channel.Handle("getNodeStatus", func(args interface{}) (interface{}, error) {
		return c.GetNodeStatus(), nil
	})

	channel.Handle("getLastBlock", func(args interface{}) (interface{}, error) {
		return c.GetLastBlock(), nil
	})

	channel.Handle("blocks", func(args interface{}) (interface{}, error) {
		a, ok := args.(BlocksArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("blocks: malformed args", nil)
		}
		list, err := c.Blocks(a.LastBlockID)
		if err != nil {
			return nil, err
		}
		return BlocksResult{Success: true, Blocks: list}, nil
	})

	channel.Handle("blocksCommon", func(args interface{}) (interface{}, error) {
		a, ok := args.(BlocksCommonArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("blocksCommon: malformed args", nil)
		}
		id, found, err := c.BlocksCommon(a.CandidateIDs)
		if err != nil {
			return nil, err
		}
		if !found {
			id = ""
		}
		return BlocksCommonResult{Success: true, Common: id}, nil
	})

	channel.Handle("getSlotNumber", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetSlotNumberArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getSlotNumber: malformed args", nil)
		}
		return c.GetSlotNumber(a.EpochTime), nil
	})

	channel.Handle("calcSlotRound", func(args interface{}) (interface{}, error) {
		a, ok := args.(CalcSlotRoundArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("calcSlotRound: malformed args", nil)
		}
		return c.CalcSlotRound(a.Height), nil
	})

	channel.Handle("getMultisigWalletMembers", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetMultisigWalletMembersArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getMultisigWalletMembers: malformed args", nil)
		}
		return c.GetMultisigWalletMembers(a.WalletAddress)
	})

	channel.Handle("getMinMultisigRequiredSignatures", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetMinMultisigRequiredSignaturesArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getMinMultisigRequiredSignatures: malformed args", nil)
		}
		return c.GetMinMultisigRequiredSignatures(a.WalletAddress)
	})

	channel.Handle("getInboundTransactions", func(args interface{}) (interface{}, error) {
		a, ok := args.(WalletTransactionsArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getInboundTransactions: malformed args", nil)
		}
		return c.GetInboundTransactions(a.WalletAddress, a.FromTimestamp, a.Limit)
	})

	channel.Handle("getOutboundTransactions", func(args interface{}) (interface{}, error) {
		a, ok := args.(WalletTransactionsArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getOutboundTransactions: malformed args", nil)
		}
		return c.GetOutboundTransactions(a.WalletAddress, a.FromTimestamp, a.Limit)
	})

	channel.Handle("getInboundTransactionsFromBlock", func(args interface{}) (interface{}, error) {
		a, ok := args.(WalletTransactionsFromBlockArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getInboundTransactionsFromBlock: malformed args", nil)
		}
		return c.GetInboundTransactionsFromBlock(a.WalletAddress, a.BlockID)
	})

	channel.Handle("getOutboundTransactionsFromBlock", func(args interface{}) (interface{}, error) {
		a, ok := args.(WalletTransactionsFromBlockArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getOutboundTransactionsFromBlock: malformed args", nil)
		}
		return c.GetOutboundTransactionsFromBlock(a.WalletAddress, a.BlockID)
	})

	channel.Handle("getLastBlockAtTimestamp", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetLastBlockAtTimestampArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getLastBlockAtTimestamp: malformed args", nil)
		}
		block, found, err := c.GetLastBlockAtTimestamp(a.Timestamp)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return block, nil
	})

	channel.Handle("getMaxBlockHeight", func(args interface{}) (interface{}, error) {
		return c.GetMaxBlockHeight()
	})

	channel.Handle("getBlocksBetweenHeights", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetBlocksBetweenHeightsArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getBlocksBetweenHeights: malformed args", nil)
		}
		return c.GetBlocksBetweenHeights(a.FromHeight, a.ToHeight, a.Limit)
	})

	channel.Handle("getBlockAtHeight", func(args interface{}) (interface{}, error) {
		a, ok := args.(GetBlockAtHeightArgs)
		if !ok {
			return nil, chainerrors.NewValidationError("getBlockAtHeight: malformed args", nil)
		}
		block, found, err := c.GetBlockAtHeight(a.Height)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return block, nil
	})

	channel.Handle("getModuleOptions", func(args interface{}) (interface{}, error) {
		return c.GetModuleOptions(), nil
	})
}
