package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"nftstake/core/types"
	"nftstake/crypto"
	"nftstake/native/staking"
)

// runEncode builds a message body for the send command or for any client
// that delivers raw bodies.
func runEncode(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return fail(stderr, errors.New("encode requires a message kind"))
	}
	kind := args[0]
	fs := flag.NewFlagSet("encode "+kind, flag.ContinueOnError)
	fs.SetOutput(stderr)
	queryID := fs.Uint64("query-id", 0, "query id echoed in replies")
	returnItem := fs.Bool("return", false, "claim: release the item after settling")
	amount := fs.String("amount", "", "withdraw: token amount")
	items := fs.String("items", "", "add-items: ADDR:RARITY,...; remove-items: ADDR,...")
	rarities := fs.String("rarities", "", "add-rarity: ID:COMMON:BOOST,...")
	ids := fs.String("ids", "", "remove-rarity: ID,...")
	at := fs.Int64("at", 0, "valid-until: unix timestamp")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	var msg types.Message
	var err error
	switch kind {
	case "claim":
		msg = &staking.Claim{ReturnItem: *returnItem}
	case "withdraw":
		var v *big.Int
		if v, err = parseAmount(*amount); err == nil {
			msg = &staking.AdminWithdraw{Amount: v}
		}
	case "add-items":
		msg, err = parseCatalog(*items)
	case "remove-items":
		msg, err = parseItemList(*items)
	case "add-rarity":
		msg, err = parseRarities(*rarities)
	case "remove-rarity":
		msg, err = parseRarityIDs(*ids)
	case "valid-until":
		msg = &staking.AdminChangeValidUntil{ValidUntil: *at}
	default:
		err = fmt.Errorf("unknown message kind %q", kind)
	}
	if err != nil {
		return fail(stderr, err)
	}
	body, err := staking.EncodeMessage(*queryID, msg)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, hex.EncodeToString(body))
	return 0
}

func runDecode(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return fail(stderr, errors.New("decode requires exactly one hex body"))
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[0]), "0x"))
	if err != nil {
		return fail(stderr, fmt.Errorf("body must be hex: %w", err))
	}
	queryID, msg, err := staking.DecodeMessage(raw)
	if err != nil {
		return fail(stderr, err)
	}
	out := map[string]interface{}{
		"op":      fmt.Sprintf("0x%08x", msg.Opcode()),
		"type":    strings.TrimPrefix(fmt.Sprintf("%T", msg), "*staking."),
		"queryId": queryID,
		"message": msg,
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func parseCatalog(raw string) (types.Message, error) {
	msg := &staking.AdminAddItems{}
	for _, entry := range splitList(raw) {
		addr, rarity, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("catalog entry %q must be ADDR:RARITY", entry)
		}
		item, err := crypto.ParseRaw(addr)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", addr, err)
		}
		id, err := strconv.ParseUint(rarity, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("rarity %q: %w", rarity, err)
		}
		msg.Items = append(msg.Items, staking.CatalogEntry{Item: item, Rarity: uint16(id)})
	}
	if len(msg.Items) == 0 {
		return nil, errors.New("-items is required")
	}
	return msg, nil
}

func parseItemList(raw string) (types.Message, error) {
	msg := &staking.AdminRemoveItems{}
	for _, entry := range splitList(raw) {
		item, err := crypto.ParseRaw(entry)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", entry, err)
		}
		msg.Items = append(msg.Items, item)
	}
	if len(msg.Items) == 0 {
		return nil, errors.New("-items is required")
	}
	return msg, nil
}

func parseRarities(raw string) (types.Message, error) {
	msg := &staking.AdminAddRarity{}
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("rarity %q must be ID:COMMON:BOOST", entry)
		}
		id, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("rarity id %q: %w", parts[0], err)
		}
		common, err := parseAmount(parts[1])
		if err != nil {
			return nil, err
		}
		boost, err := parseAmount(parts[2])
		if err != nil {
			return nil, err
		}
		msg.Rarities = append(msg.Rarities, staking.RarityEntry{
			ID:     uint16(id),
			Reward: &staking.Reward{CommonReward: common, BoostReward: boost},
		})
	}
	if len(msg.Rarities) == 0 {
		return nil, errors.New("-rarities is required")
	}
	return msg, nil
}

func parseRarityIDs(raw string) (types.Message, error) {
	msg := &staking.AdminRemoveRarity{}
	for _, entry := range splitList(raw) {
		id, err := strconv.ParseUint(entry, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("rarity id %q: %w", entry, err)
		}
		msg.IDs = append(msg.IDs, uint16(id))
	}
	if len(msg.IDs) == 0 {
		return nil, errors.New("-ids is required")
	}
	return msg, nil
}
