package staking

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "nftstake/core/errors"
	"nftstake/core/types"
)

// maxCoinsBytes bounds encoded amounts to 128 bits.
const maxCoinsBytes = 16

// maxListEntries bounds dictionary payloads.
const maxListEntries = math.MaxUint16

type bodyWriter struct {
	buf []byte
	err error
}

func (w *bodyWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *bodyWriter) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *bodyWriter) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *bodyWriter) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *bodyWriter) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *bodyWriter) addr(a [20]byte) { w.buf = append(w.buf, a[:]...) }

func (w *bodyWriter) time(v int64) {
	if v < 0 && w.err == nil {
		w.err = fmt.Errorf("negative timestamp %d", v)
	}
	w.u64(uint64(v))
}

func (w *bodyWriter) coins(v *big.Int) {
	if v == nil {
		w.u8(0)
		return
	}
	u, overflow := uint256.FromBig(v)
	if v.Sign() < 0 || overflow || u.ByteLen() > maxCoinsBytes {
		if w.err == nil {
			w.err = fmt.Errorf("amount %s out of range", v)
		}
		return
	}
	raw := u.Bytes()
	w.u8(uint8(len(raw)))
	w.buf = append(w.buf, raw...)
}

func (w *bodyWriter) count(n int) {
	if n > maxListEntries && w.err == nil {
		w.err = fmt.Errorf("too many entries: %d", n)
	}
	w.u16(uint16(n))
}

func (w *bodyWriter) snapshot(s RaritySnapshot) {
	w.u16(s.ID)
	w.coins(s.CommonReward)
	w.coins(s.BoostReward)
}

type bodyReader struct {
	data []byte
	off  int
	err  error
}

func (r *bodyReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated body at offset %d", r.off)
		return nil
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out
}

func (r *bodyReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *bodyReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *bodyReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *bodyReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *bodyReader) bool() bool {
	v := r.u8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("invalid bool byte %d", v)
	}
	return v == 1
}

func (r *bodyReader) addr() [20]byte {
	var out [20]byte
	copy(out[:], r.take(20))
	return out
}

func (r *bodyReader) time() int64 {
	v := r.u64()
	if v > math.MaxInt64 && r.err == nil {
		r.err = fmt.Errorf("timestamp overflow")
	}
	return int64(v)
}

func (r *bodyReader) coins() *big.Int {
	n := int(r.u8())
	if n > maxCoinsBytes && r.err == nil {
		r.err = fmt.Errorf("amount length %d exceeds %d bytes", n, maxCoinsBytes)
	}
	raw := r.take(n)
	if r.err != nil {
		return big.NewInt(0)
	}
	return new(uint256.Int).SetBytes(raw).ToBig()
}

func (r *bodyReader) snapshot() RaritySnapshot {
	return RaritySnapshot{ID: r.u16(), CommonReward: r.coins(), BoostReward: r.coins()}
}

func (r *bodyReader) rest() []byte {
	if r.err != nil {
		return nil
	}
	out := append([]byte(nil), r.data[r.off:]...)
	r.off = len(r.data)
	return out
}

// EncodeMessage serialises op | query_id | payload.
func EncodeMessage(queryID uint64, msg types.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	w := &bodyWriter{}
	w.u32(msg.Opcode())
	w.u64(queryID)
	switch m := msg.(type) {
	case *OwnershipAssigned:
		w.addr(m.PrevOwner)
		w.buf = append(w.buf, m.Payload...)
	case *Claim:
		w.bool(m.ReturnItem)
	case *StakeCommand:
		w.addr(m.Staker)
		w.time(m.StakedAt)
		w.u8(uint8(m.Lock))
		w.snapshot(m.Rarity)
	case *ClaimRelay:
		w.addr(m.Item)
		w.addr(m.Staker)
		w.time(m.Elapsed)
		w.bool(m.ReturnItem)
		w.u8(uint8(m.Lock))
		w.snapshot(m.Rarity)
	case *ClaimReply:
		w.bool(m.Release)
		w.time(m.Advance)
		w.coins(m.Payout)
	case *ReserveDeposit:
		w.coins(m.Amount)
		w.addr(m.Sender)
	case *AdminWithdraw:
		w.coins(m.Amount)
	case *AdminAddItems:
		w.count(len(m.Items))
		for _, entry := range m.Items {
			w.addr(entry.Item)
			w.u16(entry.Rarity)
		}
	case *AdminRemoveItems:
		w.count(len(m.Items))
		for _, item := range m.Items {
			w.addr(item)
		}
	case *AdminAddRarity:
		w.count(len(m.Rarities))
		for _, entry := range m.Rarities {
			if entry.Reward == nil {
				return nil, fmt.Errorf("encode: rarity %d has no reward", entry.ID)
			}
			w.u16(entry.ID)
			w.coins(entry.Reward.CommonReward)
			w.coins(entry.Reward.BoostReward)
		}
	case *AdminRemoveRarity:
		w.count(len(m.IDs))
		for _, id := range m.IDs {
			w.u16(id)
		}
	case *AdminChangeValidUntil:
		w.time(m.ValidUntil)
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", msg)
	}
	if w.err != nil {
		return nil, fmt.Errorf("encode op 0x%08x: %w", msg.Opcode(), w.err)
	}
	return w.buf, nil
}

// DecodeMessage parses a body produced by EncodeMessage. Unknown opcodes
// yield ErrUnknownOp, malformed payloads ErrInvalidMessage.
func DecodeMessage(data []byte) (uint64, types.Message, error) {
	r := &bodyReader{data: data}
	op := r.u32()
	queryID := r.u64()
	if r.err != nil {
		return 0, nil, coreerrors.Wrap(coreerrors.ErrInvalidMessage, "%v", r.err)
	}
	var msg types.Message
	switch op {
	case OpOwnershipAssigned:
		msg = &OwnershipAssigned{PrevOwner: r.addr(), Payload: r.rest()}
	case OpClaim:
		msg = &Claim{ReturnItem: r.bool()}
	case OpStakeCommand:
		msg = &StakeCommand{Staker: r.addr(), StakedAt: r.time(), Lock: LockOption(r.u8()), Rarity: r.snapshot()}
	case OpClaimRelay:
		msg = &ClaimRelay{
			Item:       r.addr(),
			Staker:     r.addr(),
			Elapsed:    r.time(),
			ReturnItem: r.bool(),
			Lock:       LockOption(r.u8()),
			Rarity:     r.snapshot(),
		}
	case OpClaimReply:
		msg = &ClaimReply{Release: r.bool(), Advance: r.time(), Payout: r.coins()}
	case OpReserveDeposit:
		msg = &ReserveDeposit{Amount: r.coins(), Sender: r.addr()}
	case OpAdminWithdraw:
		msg = &AdminWithdraw{Amount: r.coins()}
	case OpAdminAddItems:
		n := int(r.u16())
		items := make([]CatalogEntry, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			items = append(items, CatalogEntry{Item: r.addr(), Rarity: r.u16()})
		}
		msg = &AdminAddItems{Items: items}
	case OpAdminRemoveItems:
		n := int(r.u16())
		items := make([][20]byte, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			items = append(items, r.addr())
		}
		msg = &AdminRemoveItems{Items: items}
	case OpAdminAddRarity:
		n := int(r.u16())
		entries := make([]RarityEntry, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			id := r.u16()
			entries = append(entries, RarityEntry{ID: id, Reward: &Reward{CommonReward: r.coins(), BoostReward: r.coins()}})
		}
		msg = &AdminAddRarity{Rarities: entries}
	case OpAdminRemoveRarity:
		n := int(r.u16())
		ids := make([]uint16, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			ids = append(ids, r.u16())
		}
		msg = &AdminRemoveRarity{IDs: ids}
	case OpAdminChangeValidUntil:
		msg = &AdminChangeValidUntil{ValidUntil: r.time()}
	default:
		return queryID, nil, coreerrors.Wrap(coreerrors.ErrUnknownOp, "op 0x%08x", op)
	}
	if r.err != nil {
		return queryID, nil, coreerrors.Wrap(coreerrors.ErrInvalidMessage, "op 0x%08x: %v", op, r.err)
	}
	if r.off != len(r.data) {
		return queryID, nil, coreerrors.Wrap(coreerrors.ErrInvalidMessage, "op 0x%08x: %d trailing bytes", op, len(r.data)-r.off)
	}
	return queryID, msg, nil
}

// ParseLockPayload extracts the lock option from a stake forward payload.
func ParseLockPayload(payload []byte) (LockOption, bool) {
	if len(payload) != 1 {
		return 0, false
	}
	opt := LockOption(payload[0])
	return opt, opt.Valid()
}
