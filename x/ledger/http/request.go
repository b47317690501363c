package http

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/ledger"
)

// claimReq is the JSON schema for POST routeSlotClaim. Amounts are decimal strings.
type claimReq struct {
	Content              string `json:"content"`
	Currency             string `json:"currency"`
	DeclaredCurrentPrice string `json:"declared_current_price"`
	NewPrice             string `json:"new_price"`
	Funds                string `json:"funds"`
}

func (req claimReq) toClaim(id ledger.SlotID, caller common.Address) (ledger.ClaimRequest, error) {
	currency, err := asset.ParseCurrency(req.Currency)
	if err != nil {
		return ledger.ClaimRequest{}, err
	}
	declared, err := parseAmount("declared_current_price", req.DeclaredCurrentPrice, true)
	if err != nil {
		return ledger.ClaimRequest{}, err
	}
	price, err := parseAmount("new_price", req.NewPrice, false)
	if err != nil {
		return ledger.ClaimRequest{}, err
	}
	funds, err := parseAmount("funds", req.Funds, false)
	if err != nil {
		return ledger.ClaimRequest{}, err
	}
	return ledger.ClaimRequest{
		ID:                   id,
		Content:              req.Content,
		Currency:             currency,
		DeclaredCurrentPrice: declared,
		NewPrice:             price,
		Funds:                funds,
		Caller:               caller,
	}, nil
}

// authorityReq is the JSON schema for POST routeAuthority.
type authorityReq struct {
	Authority string `json:"authority"` // 0x-hex
}

// currencyReq is the JSON schema for POST routeCurrencies.
type currencyReq struct {
	Currency string `json:"currency"`
	Allowed  bool   `json:"allowed"`
}

func parseAmount(field, raw string, optional bool) (*uint256.Int, error) {
	if raw == "" {
		if optional {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("%s is required", field)
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: expect an unsigned decimal integer: %w", field, err)
	}
	return v, nil
}

func parseSlotID(raw string) (ledger.SlotID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("slot id %q: expect an unsigned integer", raw)
	}
	return ledger.SlotID(id), nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s %q: expect a 0x-hex address", field, raw)
	}
	return common.HexToAddress(raw), nil
}
