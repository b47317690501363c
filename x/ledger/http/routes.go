package http

// Route patterns for the ledger HTTP surface.
const (
	routeSlots        = "/v1/slots"
	routeSlot         = "/v1/slots/{id}"
	routeSlotOwed     = "/v1/slots/{id}/owed"
	routeSlotClaim    = "/v1/slots/{id}/claim"
	routeSlotCollect  = "/v1/slots/{id}/collect"
	routeSlotRemove   = "/v1/slots/{id}/remove"
	routeCollectAll   = "/v1/collect"
	routeParams       = "/v1/params"
	routeAuthority    = "/v1/authority"
	routeCurrencies   = "/v1/currencies"
	routeEvents       = "/v1/events"
	routeBalance      = "/v1/balances/{currency}/{holder}"
	defaultEventLimit = 1000
)

// Route names for mux URL building.
const (
	routeNameSlots       = "ledger_slots"
	routeNameSlot        = "ledger_slot"
	routeNameSlotOwed    = "ledger_slot_owed"
	routeNameSlotClaim   = "ledger_slot_claim"
	routeNameSlotCollect = "ledger_slot_collect"
	routeNameSlotRemove  = "ledger_slot_remove"
	routeNameCollectAll  = "ledger_collect_all"
	routeNameParams      = "ledger_params"
	routeNameAuthority   = "ledger_authority"
	routeNameCurrencies  = "ledger_currencies"
	routeNameEvents      = "ledger_events"
	routeNameBalance     = "ledger_balance"
)
