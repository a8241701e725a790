package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tenderbridge/internal/models"
	"tenderbridge/internal/service"
)

type Controller struct {
	core *service.Core
}

func NewController(core *service.Core) *Controller {
	return &Controller{core: core}
}

//// Service

func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, c.core.Health(r.Context()))
}

func (c *Controller) AgentChanged(w http.ResponseWriter, r *http.Request) {
	req := AgentChangedRequest{}
	if !c.decode(w, r, &req) {
		return
	}

	err := c.core.Reset(r.Context(), req.Account, req.Network)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, c.core.Health(r.Context()))
}

//// Tenders

func (c *Controller) GetTenders(w http.ResponseWriter, r *http.Request) {
	listing, err := c.core.ListTenders(r.Context())
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, listing)
}

func (c *Controller) GetTender(w http.ResponseWriter, r *http.Request) {
	tender, err := c.core.GetTender(r.Context(), chi.URLParam(r, "tenderId"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, tender)
}

func (c *Controller) NewTender(w http.ResponseWriter, r *http.Request) {
	req := NewTenderRequest{}
	if !c.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := req.Creator
	if actor == "" {
		actor = c.core.Account()
	}
	if actor == "" {
		errorResponse(w, http.StatusBadRequest, "creator is required")
		return
	}

	draft := req.Draft(time.Now())
	result, err := c.core.Dispatch(r.Context(), models.Intent{
		Kind:  models.IntentCreate,
		Actor: actor,
		Draft: &draft,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, actionResponse(result))
}

func (c *Controller) TakeTender(w http.ResponseWriter, r *http.Request) {
	c.tenderAction(w, r, models.IntentTake)
}

func (c *Controller) CompleteTender(w http.ResponseWriter, r *http.Request) {
	c.tenderAction(w, r, models.IntentComplete)
}

func (c *Controller) CancelTender(w http.ResponseWriter, r *http.Request) {
	c.tenderAction(w, r, models.IntentCancel)
}

func (c *Controller) CloseTender(w http.ResponseWriter, r *http.Request) {
	c.tenderAction(w, r, models.IntentClose)
}

func (c *Controller) tenderAction(w http.ResponseWriter, r *http.Request, kind models.IntentKind) {
	req := ActionRequest{}
	if !c.decode(w, r, &req) {
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = c.core.Account()
	}
	if actor == "" {
		errorResponse(w, http.StatusBadRequest, "actor is required")
		return
	}

	result, err := c.core.Dispatch(r.Context(), models.Intent{
		Kind:     kind,
		TenderId: chi.URLParam(r, "tenderId"),
		Actor:    actor,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, actionResponse(result))
}

//// Bids

func (c *Controller) NewBid(w http.ResponseWriter, r *http.Request) {
	req := NewBidRequest{}
	if !c.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := req.Bidder
	if actor == "" {
		actor = c.core.Account()
	}
	if actor == "" {
		errorResponse(w, http.StatusBadRequest, "bidder is required")
		return
	}

	result, err := c.core.Dispatch(r.Context(), models.Intent{
		Kind:     models.IntentBid,
		TenderId: req.TenderId,
		Actor:    actor,
		Bid: &models.BidDraft{
			TenderId: req.TenderId,
			Bidder:   actor,
			Amount:   req.Amount,
			Proposal: req.Proposal,
		},
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, actionResponse(result))
}

func (c *Controller) GetTenderBids(w http.ResponseWriter, r *http.Request) {
	bids, err := c.core.ListBids(r.Context(), chi.URLParam(r, "tenderId"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, bids)
}

//// Parties

func (c *Controller) NewParty(w http.ResponseWriter, r *http.Request) {
	req := NewPartyRequest{}
	if !c.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	party := &models.Party{
		Id:       uuid.NewString(),
		Username: req.Username,
		Address:  req.Address,
	}
	err := c.core.RegisterParty(r.Context(), party)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, party)
}

func (c *Controller) GetParty(w http.ResponseWriter, r *http.Request) {
	party, err := c.core.PartyByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, party)
}

//// Pricing

func (c *Controller) EstimatePrice(w http.ResponseWriter, r *http.Request) {
	req := EstimateRequest{}
	if !c.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	estimate, err := c.core.Estimate(r.Context(), req.CargoAttributes)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	jsonResponse(w, estimate)
}

//// Events

// Events streams board updates as server-sent events until the client
// disconnects.
func (c *Controller) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		errorResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := c.core.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.Println("controller.Controller.Events:", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

//// Helpers

// decode reads a JSON body into req. An empty body is allowed and
// leaves req zero-valued; several actions carry no payload.
func (c *Controller) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "unreadable body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err = json.Unmarshal(body, req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func actionResponse(result *models.IntentResult) ActionResponse {
	return ActionResponse{
		Tender:             result.Record,
		Migrated:           result.Migrated,
		CapabilityDegraded: result.CapabilityDegraded,
	}
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		errorResponse(w, http.StatusNotFound, "tender not found")
	case errors.Is(err, models.ErrNoBid):
		errorResponse(w, http.StatusNotFound, "bid not found")
	case errors.Is(err, models.ErrExpired):
		errorResponse(w, http.StatusGone, "tender expired")
	case errors.Is(err, models.ErrInvalidTransition):
		errorResponse(w, http.StatusConflict, "action not allowed in the tender's current state")
	case errors.Is(err, models.ErrInvalidParty):
		errorResponse(w, http.StatusForbidden, "actor not allowed to perform this action")
	case errors.Is(err, models.ErrUserCancelled):
		errorResponse(w, http.StatusConflict, "signing cancelled by user")
	case errors.Is(err, models.ErrIdentifierCollision):
		errorResponse(w, http.StatusConflict, "ledger identifier collision")
	case errors.Is(err, models.ErrBusy):
		errorResponse(w, http.StatusTooManyRequests, "another action for this tender is in flight")
	case errors.Is(err, models.ErrTimeout):
		errorResponse(w, http.StatusGatewayTimeout, "ledger timed out")
	case errors.Is(err, models.ErrLedgerUnavailable):
		errorResponse(w, http.StatusServiceUnavailable, "ledger unavailable")
	case errors.Is(err, models.ErrLedgerRejected):
		message := "ledger rejected the action"
		if reason := models.RejectionReason(err); reason != "" {
			message = "ledger rejected the action: " + reason
		}
		errorResponse(w, http.StatusBadGateway, message)
	default:
		errorResponse(w, http.StatusInternalServerError, "internal error")
	}
	log.Println(err)
}

func errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("controller: writing response:", err)
	}
}
