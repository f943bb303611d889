package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/logging"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 5 * time.Second

// API serves the HTTP interface of the engine
type API struct {
	svc *Service
}

// NewRouter creates a chi router with all routes registered. feed, when
// not nil, is mounted at /ws.
func NewRouter(svc *Service, metrics *Metrics, feed http.Handler) chi.Router {
	api := &API{svc: svc}

	r := chi.NewRouter()
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	if feed != nil {
		r.Handle("/ws", feed)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/orders", api.enterOrder)
		r.Delete("/orders", api.deleteOrder)

		r.Get("/securities", api.listSecurities)
		r.Get("/securities/{isin}", api.getSecurity)
		r.Get("/securities/{isin}/book", api.getBook)
		r.Put("/securities/{isin}/state", api.changeState)

		r.Get("/brokers", api.listBrokers)
		r.Get("/brokers/{id}", api.getBroker)
		r.Get("/shareholders/{id}", api.getShareholder)
	})

	return r
}

func (a *API) enterOrder(w http.ResponseWriter, r *http.Request) {
	var req core.EnterOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EntryTime.IsZero() {
		req.EntryTime = time.Now().UTC()
	}
	events, err := a.svc.EnterOrder(r.Context(), req)
	a.writeEvents(w, r, events, err)
}

func (a *API) deleteOrder(w http.ResponseWriter, r *http.Request) {
	var req core.DeleteOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	events, err := a.svc.DeleteOrder(r.Context(), req)
	a.writeEvents(w, r, events, err)
}

type changeStateRequest struct {
	TargetState core.MatchingState `json:"targetState"`
}

func (a *API) changeState(w http.ResponseWriter, r *http.Request) {
	var body changeStateRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	events, err := a.svc.ChangeMatchingState(r.Context(), core.ChangeMatchingStateRequest{
		SecurityISIN: chi.URLParam(r, "isin"),
		TargetState:  body.TargetState,
	})
	a.writeEvents(w, r, events, err)
}

func (a *API) listSecurities(w http.ResponseWriter, r *http.Request) {
	var views []securityView
	err := a.svc.Query(r.Context(), func(repo *memory.Repository) {
		views = make([]securityView, 0)
		for _, s := range repo.Securities() {
			views = append(views, newSecurityView(s))
		}
	})
	a.writeQuery(w, r, views, err)
}

func (a *API) getSecurity(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")
	var view *securityView
	err := a.svc.Query(r.Context(), func(repo *memory.Repository) {
		if s := repo.FindSecurity(isin); s != nil {
			v := newSecurityView(s)
			view = &v
		}
	})
	if err == nil && view == nil {
		writeError(w, http.StatusNotFound, "not_found", "security "+isin+" not found")
		return
	}
	a.writeQuery(w, r, view, err)
}

func (a *API) getBook(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")
	var view *bookView
	err := a.svc.Query(r.Context(), func(repo *memory.Repository) {
		if s := repo.FindSecurity(isin); s != nil {
			v := newBookView(s)
			view = &v
		}
	})
	if err == nil && view == nil {
		writeError(w, http.StatusNotFound, "not_found", "security "+isin+" not found")
		return
	}
	a.writeQuery(w, r, view, err)
}

func (a *API) listBrokers(w http.ResponseWriter, r *http.Request) {
	var views []brokerView
	err := a.svc.Query(r.Context(), func(repo *memory.Repository) {
		views = make([]brokerView, 0)
		for _, b := range repo.Brokers() {
			views = append(views, newBrokerView(b))
		}
	})
	a.writeQuery(w, r, views, err)
}

func (a *API) getBroker(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var view *brokerView
	err := a.svc.Query(r.Context(), func(repo *memory.Repository) {
		if b := repo.FindBroker(id); b != nil {
			v := newBrokerView(b)
			view = &v
		}
	})
	if err == nil && view == nil {
		writeError(w, http.StatusNotFound, "not_found", "broker not found")
		return
	}
	a.writeQuery(w, r, view, err)
}

func (a *API) getShareholder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var view *shareholderView
	err := a.svc.Query(r.Context(), func(repo *memory.Repository) {
		if s := repo.FindShareholder(id); s != nil {
			v := newShareholderView(s)
			view = &v
		}
	})
	if err == nil && view == nil {
		writeError(w, http.StatusNotFound, "not_found", "shareholder not found")
		return
	}
	a.writeQuery(w, r, view, err)
}

// writeEvents answers 200 when the request went through and 422 when the
// first event is a rejection. Either way the body lists every event.
func (a *API) writeEvents(w http.ResponseWriter, r *http.Request, events []*messaging.Event, err error) {
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	status := http.StatusOK
	if len(events) > 0 && events[0].Type == messaging.EventOrderRejected {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, eventsResponse{Events: events})
}

func (a *API) writeQuery(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownSecurity):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrInvalidArgument), errors.Is(err, core.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrEngineStopped), errors.Is(err, ErrEngineBusy):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return 0, false
	}
	return id, true
}
