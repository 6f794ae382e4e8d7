package handlers

import (
	"net/http"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/relay/config"
	"github.com/vango-go/santa-relay/pkg/relay/lifecycle"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether new calls can be served.
type ReadyHandler struct {
	Config    config.Config
	Persona   *persona.Persona
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		Persona     string   `json:"persona,omitempty"`
		Model       string   `json:"model,omitempty"`
		Draining    bool     `json:"draining"`
		ActiveCalls int      `json:"active_calls"`
		Issues      []string `json:"issues,omitempty"`
	}

	var resp readyResp
	if h.Persona == nil {
		resp.Issues = append(resp.Issues, "no persona loaded")
	} else {
		resp.Persona = h.Persona.Name
		resp.Model = h.Persona.Model
		provider, _, _ := core.ParseModelString(h.Persona.Model)
		resp.Issues = append(resp.Issues, h.Config.Issues(provider)...)
	}
	resp.Draining = h.Lifecycle.IsDraining()
	resp.ActiveCalls = h.Sessions.Count()
	resp.OK = len(resp.Issues) == 0 && !resp.Draining

	status := http.StatusOK
	switch {
	case resp.Draining:
		status = http.StatusServiceUnavailable
	case !resp.OK:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}
