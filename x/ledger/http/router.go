package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeSlots, h.handleSlots).Methods(http.MethodGet).Name(routeNameSlots)
	r.HandleFunc(routeSlot, h.handleSlot).Methods(http.MethodGet).Name(routeNameSlot)
	r.HandleFunc(routeSlotOwed, h.handleOwed).Methods(http.MethodGet).Name(routeNameSlotOwed)
	r.HandleFunc(routeSlotClaim, h.handleClaim).Methods(http.MethodPost).Name(routeNameSlotClaim)
	r.HandleFunc(routeSlotCollect, h.handleCollect).Methods(http.MethodPost).Name(routeNameSlotCollect)
	r.HandleFunc(routeSlotRemove, h.handleRemove).Methods(http.MethodPost).Name(routeNameSlotRemove)
	r.HandleFunc(routeCollectAll, h.handleCollectAll).Methods(http.MethodPost).Name(routeNameCollectAll)
	r.HandleFunc(routeParams, h.handleParams).Methods(http.MethodGet).Name(routeNameParams)
	r.HandleFunc(routeAuthority, h.handleSetAuthority).Methods(http.MethodPost).Name(routeNameAuthority)
	r.HandleFunc(routeCurrencies, h.handleSetCurrency).Methods(http.MethodPost).Name(routeNameCurrencies)

	if h.events != nil {
		r.HandleFunc(routeEvents, h.handleEvents).Methods(http.MethodGet).Name(routeNameEvents)
	}
	if h.balances != nil {
		r.HandleFunc(routeBalance, h.handleBalance).Methods(http.MethodGet).Name(routeNameBalance)
	}
}
