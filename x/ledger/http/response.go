package http

import (
	"time"

	"github.com/compose-network/harberger/x/ledger"
)

type slotResp struct {
	ID               uint64     `json:"id"`
	Content          string     `json:"content"`
	Price            string     `json:"price"`
	Deposit          string     `json:"deposit"`
	Holder           string     `json:"holder"`
	Currency         string     `json:"currency"`
	LastClaimedAt    *time.Time `json:"last_claimed_at,omitempty"`
	LastTaxSettledAt *time.Time `json:"last_tax_settled_at,omitempty"`
	Owed             string     `json:"owed"`
	Foreclosable     bool       `json:"foreclosable"`
	ForeclosesAt     *time.Time `json:"forecloses_at,omitempty"`
	BiddableAt       *time.Time `json:"biddable_at,omitempty"`
}

func toSlotResp(v ledger.SlotView) slotResp {
	return slotResp{
		ID:               uint64(v.ID),
		Content:          v.Slot.Content,
		Price:            v.Slot.Price.Dec(),
		Deposit:          v.Slot.Deposit.Dec(),
		Holder:           v.Slot.Holder.Hex(),
		Currency:         v.Slot.Currency.String(),
		LastClaimedAt:    timeOrNil(v.Slot.LastClaimedAt),
		LastTaxSettledAt: timeOrNil(v.Slot.LastTaxSettledAt),
		Owed:             v.Owed.Dec(),
		Foreclosable:     v.Foreclosable,
		ForeclosesAt:     timeOrNil(v.ForeclosesAt),
		BiddableAt:       timeOrNil(v.BiddableAt),
	}
}

type claimResp struct {
	ID         uint64 `json:"id"`
	TaxPaid    string `json:"tax_paid"`
	Refunded   string `json:"refunded"`
	Foreclosed bool   `json:"foreclosed"`
}

type collectResp struct {
	ID         uint64 `json:"id"`
	Currency   string `json:"currency"`
	Collected  string `json:"collected"`
	Remaining  string `json:"remaining"`
	Foreclosed bool   `json:"foreclosed"`
}

func toCollectResp(r ledger.CollectResult) collectResp {
	return collectResp{
		ID:         uint64(r.ID),
		Currency:   r.Currency.String(),
		Collected:  r.Collected.Dec(),
		Remaining:  r.Remaining.Dec(),
		Foreclosed: r.Foreclosed,
	}
}

type removeResp struct {
	ID        uint64 `json:"id"`
	Holder    string `json:"holder"`
	Collected string `json:"collected"`
	Refunded  string `json:"refunded"`
}

type paramsResp struct {
	Authority         string    `json:"authority"`
	Custody           string    `json:"custody"`
	TaxRateBps        uint64    `json:"tax_rate_bps"`
	CycleDuration     string    `json:"cycle_duration"`
	MinIncreaseBps    uint64    `json:"min_increase_bps"`
	AllowedCurrencies []string  `json:"allowed_currencies"`
	NextID            uint64    `json:"next_id"`
	Now               time.Time `json:"now"`
}

func toParamsResp(p ledger.Params) paramsResp {
	allowed := make([]string, 0, len(p.AllowedCurrencies))
	for _, c := range p.AllowedCurrencies {
		allowed = append(allowed, c.String())
	}
	return paramsResp{
		Authority:         p.Authority.Hex(),
		Custody:           p.Custody.Hex(),
		TaxRateBps:        p.TaxRateBps,
		CycleDuration:     p.CycleDuration.String(),
		MinIncreaseBps:    p.MinIncreaseBps,
		AllowedCurrencies: allowed,
		NextID:            uint64(p.NextID),
		Now:               p.Now,
	}
}

type eventResp struct {
	ID     string            `json:"id"`
	Seq    uint64            `json:"seq"`
	Kind   string            `json:"kind"`
	SlotID uint64            `json:"slot_id"`
	Time   time.Time         `json:"time"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

func toEventResp(ev ledger.Event) eventResp {
	return eventResp{
		ID:     ev.ID.String(),
		Seq:    ev.Seq,
		Kind:   string(ev.Kind),
		SlotID: uint64(ev.SlotID),
		Time:   ev.Time,
		Attrs:  ev.Attrs,
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
