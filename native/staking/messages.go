package staking

import "math/big"

// Opcodes of every message understood by the master and the helpers.
const (
	OpOwnershipAssigned     uint32 = 0x05138d91
	OpClaim                 uint32 = 0x0a7e2d13
	OpStakeCommand          uint32 = 0x1c04b7a1
	OpClaimRelay            uint32 = 0x2b91f3c4
	OpClaimReply            uint32 = 0x3d8e6a05
	OpReserveDeposit        uint32 = 0x7362d09c
	OpAdminWithdraw         uint32 = 0x4fa096c8
	OpAdminAddItems         uint32 = 0x6d9a7414
	OpAdminRemoveItems      uint32 = 0x6d42583f
	OpAdminAddRarity        uint32 = 0x0cd2899a
	OpAdminRemoveRarity     uint32 = 0x487a18c8
	OpAdminChangeValidUntil uint32 = 0x58fe0363
)

// OwnershipAssigned is the NFT protocol's notification that an item (the
// envelope sender) now belongs to the master. The forward payload carries the
// lock option byte.
type OwnershipAssigned struct {
	PrevOwner [20]byte
	Payload   []byte
}

func (*OwnershipAssigned) Opcode() uint32 { return OpOwnershipAssigned }

// Claim asks an item's helper to settle rewards, optionally returning the item.
type Claim struct {
	ReturnItem bool
}

func (*Claim) Opcode() uint32 { return OpClaim }

// StakeCommand moves an idle helper into the staked state.
type StakeCommand struct {
	Staker   [20]byte
	StakedAt int64
	Lock     LockOption
	Rarity   RaritySnapshot
}

func (*StakeCommand) Opcode() uint32 { return OpStakeCommand }

// ClaimRelay is forwarded by a helper once timing, fee and requester checks pass.
type ClaimRelay struct {
	Item       [20]byte
	Staker     [20]byte
	Elapsed    int64
	ReturnItem bool
	Lock       LockOption
	Rarity     RaritySnapshot
}

func (*ClaimRelay) Opcode() uint32 { return OpClaimRelay }

// ClaimReply tells the helper how to continue after a settled claim.
type ClaimReply struct {
	Release bool
	Advance int64
	Payout  *big.Int
}

func (*ClaimReply) Opcode() uint32 { return OpClaimReply }

// ReserveDeposit is the token protocol's notification that reward tokens
// arrived at the master's wallet.
type ReserveDeposit struct {
	Amount *big.Int
	Sender [20]byte
}

func (*ReserveDeposit) Opcode() uint32 { return OpReserveDeposit }

// AdminWithdraw moves reward tokens from the reserve to the admin.
type AdminWithdraw struct {
	Amount *big.Int
}

func (*AdminWithdraw) Opcode() uint32 { return OpAdminWithdraw }

// AdminAddItems merges entries into the item catalog.
type AdminAddItems struct {
	Items []CatalogEntry
}

func (*AdminAddItems) Opcode() uint32 { return OpAdminAddItems }

// AdminRemoveItems drops entries from the item catalog.
type AdminRemoveItems struct {
	Items [][20]byte
}

func (*AdminRemoveItems) Opcode() uint32 { return OpAdminRemoveItems }

// AdminAddRarity merges entries into the rarity table.
type AdminAddRarity struct {
	Rarities []RarityEntry
}

func (*AdminAddRarity) Opcode() uint32 { return OpAdminAddRarity }

// AdminRemoveRarity drops entries from the rarity table.
type AdminRemoveRarity struct {
	IDs []uint16
}

func (*AdminRemoveRarity) Opcode() uint32 { return OpAdminRemoveRarity }

// AdminChangeValidUntil moves the stake deadline.
type AdminChangeValidUntil struct {
	ValidUntil int64
}

func (*AdminChangeValidUntil) Opcode() uint32 { return OpAdminChangeValidUntil }
