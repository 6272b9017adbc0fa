package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nao1215/toxguard/internal/browser"
	"github.com/nao1215/toxguard/internal/model"
)

// tabView is the JSON form of one tab.
type tabView struct {
	ID     int           `json:"id"`
	URL    string        `json:"url"`
	Active bool          `json:"active"`
	Badge  browser.Badge `json:"badge"`
	Status *model.Status `json:"status,omitempty"`
}

type tabRequest struct {
	URL string `json:"url"`
}

// tabAPI lets scripts drive the tabs of a serving host:
//
//	GET    /tabs               list tabs
//	POST   /tabs               open {"url": ...} in a new active tab
//	POST   /tabs/{id}/navigate load {"url": ...} into a tab
//	POST   /tabs/{id}/history  change the URL of a tab without a load
//	POST   /tabs/{id}/activate make a tab the active one
//	POST   /tabs/{id}/scan     start a manual scan
//	DELETE /tabs/{id}          close a tab
type tabAPI struct {
	host   *browser.Host
	logger *slog.Logger
}

func newTabAPI(host *browser.Host, logger *slog.Logger) http.Handler {
	api := &tabAPI{host: host, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tabs", api.list)
	mux.HandleFunc("POST /tabs", api.open)
	mux.HandleFunc("POST /tabs/{id}/navigate", api.navigate)
	mux.HandleFunc("POST /tabs/{id}/history", api.history)
	mux.HandleFunc("POST /tabs/{id}/activate", api.activate)
	mux.HandleFunc("POST /tabs/{id}/scan", api.scan)
	mux.HandleFunc("DELETE /tabs/{id}", api.close)
	return mux
}

func (a *tabAPI) view(id int) (tabView, bool) {
	u, ok := a.host.TabURL(id)
	if !ok {
		return tabView{}, false
	}
	active, _ := a.host.ActiveTab()
	v := tabView{ID: id, URL: u, Active: active == id, Badge: a.host.Badge(id)}
	if status, ok := a.host.Orchestrator().Status(id); ok {
		v.Status = status
	}
	return v, true
}

func (a *tabAPI) list(w http.ResponseWriter, _ *http.Request) {
	views := []tabView{}
	for _, id := range a.host.Tabs() {
		if v, ok := a.view(id); ok {
			views = append(views, v)
		}
	}
	a.reply(w, http.StatusOK, views)
}

func (a *tabAPI) open(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decode(w, r)
	if !ok {
		return
	}
	id, err := a.host.OpenTab(r.Context(), normalizeTarget(req.URL))
	if err != nil {
		// the tab stays open on a load failure, like a browser error page
		a.logger.Warn("failed to load page", "url", req.URL, "error", err)
	}
	v, _ := a.view(id)
	a.reply(w, http.StatusCreated, v)
}

func (a *tabAPI) navigate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tabID(w, r)
	if !ok {
		return
	}
	req, ok := a.decode(w, r)
	if !ok {
		return
	}
	if err := a.host.Navigate(r.Context(), id, normalizeTarget(req.URL)); err != nil {
		if errors.Is(err, browser.ErrNoSuchTab) {
			a.fail(w, http.StatusNotFound, err)
			return
		}
		a.logger.Warn("failed to load page", "url", req.URL, "error", err)
	}
	v, _ := a.view(id)
	a.reply(w, http.StatusOK, v)
}

func (a *tabAPI) history(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tabID(w, r)
	if !ok {
		return
	}
	req, ok := a.decode(w, r)
	if !ok {
		return
	}
	if err := a.host.PushState(id, req.URL); err != nil {
		a.fail(w, http.StatusNotFound, err)
		return
	}
	v, _ := a.view(id)
	a.reply(w, http.StatusOK, v)
}

func (a *tabAPI) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tabID(w, r)
	if !ok {
		return
	}
	if err := a.host.Activate(id); err != nil {
		a.fail(w, http.StatusNotFound, err)
		return
	}
	v, _ := a.view(id)
	a.reply(w, http.StatusOK, v)
}

func (a *tabAPI) scan(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tabID(w, r)
	if !ok {
		return
	}
	if _, found := a.host.TabURL(id); !found {
		a.fail(w, http.StatusNotFound, browser.ErrNoSuchTab)
		return
	}
	a.host.ContextMenuScan(id)
	w.WriteHeader(http.StatusAccepted)
}

func (a *tabAPI) close(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tabID(w, r)
	if !ok {
		return
	}
	if err := a.host.CloseTab(r.Context(), id); err != nil {
		a.fail(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *tabAPI) tabID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		a.fail(w, http.StatusBadRequest, errors.New("invalid tab id"))
		return 0, false
	}
	return id, true
}

func (a *tabAPI) decode(w http.ResponseWriter, r *http.Request) (tabRequest, bool) {
	var req tabRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.URL == "" {
		a.fail(w, http.StatusBadRequest, errors.New(`expected {"url": "..."}`))
		return req, false
	}
	return req, true
}

func (a *tabAPI) reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("failed to write response", "error", err)
	}
}

func (a *tabAPI) fail(w http.ResponseWriter, code int, err error) {
	a.reply(w, code, map[string]string{"error": err.Error()})
}
