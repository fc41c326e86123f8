// Package engine holds the Engine context threaded through every
// dissector call: the field registry, seed tags, the configured HTTP
// header routing maps, the SMTP IP-header name list, and the
// process-wide MIME-sniffing handle. Design note §9 calls for exactly
// this: replace the original's global state (node tag, class tag, MIME
// handle, plugin bitmask) with an explicit context object instead of
// package-level globals.
package engine

import (
	"github.com/h2non/filetype"

	"github.com/aol/moloch/field"
	"github.com/aol/moloch/internal/elog"
	"github.com/aol/moloch/plugin"
	"github.com/aol/moloch/session"
)

// HeaderField describes how a configured HTTP header routes to a field
// (§4.4): the field id it feeds, and how to interpret the header value.
type HeaderField struct {
	ID   field.ID
	Type field.Type // TypeInt (numeric), TypeIPHash (comma-split IPv4 list), TypeString otherwise
}

// Config is everything §6 says the core consumes from configuration.
type Config struct {
	NodeName  string
	NodeClass string
	ExtraTags []string

	SMTPIPHeaders []string

	HTTPRequestHeaders  map[string]HeaderField // lower-cased header name -> routing
	HTTPResponseHeaders map[string]HeaderField
}

// Engine is the per-process context passed to every classifier and
// dissector call. The filetype MIME sniff call (h2non/filetype.Match) is
// safe for concurrent use from multiple session goroutines, satisfying
// §5's "process-wide handle... safe under per-session serialization"
// requirement without a mutex.
type Engine struct {
	Registry *field.Registry
	Config   Config
	Log      *elog.Logger
	Plugins  *plugin.Dispatcher
}

// New builds an Engine from a registry and config. log and plugins may
// be nil; nil-safe helpers are provided (LogDebugStage, no-op dispatcher).
func New(reg *field.Registry, cfg Config, log *elog.Logger, plugins *plugin.Dispatcher) *Engine {
	if plugins == nil {
		plugins = &plugin.Dispatcher{}
	}
	return &Engine{Registry: reg, Config: cfg, Log: log, Plugins: plugins}
}

// LogDebugStage logs a malformed-structure event with the numeric stage
// identifier the original capture core uses (§4.3, §7b), if a logger is
// configured.
func (e *Engine) LogDebugStage(msg string, stage int) {
	if e.Log == nil {
		return
	}
	e.Log.Debug(msg, elog.KV("stage", stage))
}

// SniffMIME classifies the first bytes of a body, returning a short MIME
// type string or "" if unrecognized. This replaces the spec's libmagic
// call (§4.4) with github.com/h2non/filetype, which is itself a
// signature-table content sniffer.
func (e *Engine) SniffMIME(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// SeedSession applies the node/class/extra/transport tags every session
// gets before classification runs (original's moloch_detect_initial_tag,
// carried forward in SPEC_FULL §6).
func (e *Engine) SeedSession(s *session.Session) {
	s.Fields.AddTag("node:" + e.Config.NodeName)
	if e.Config.NodeClass != "" {
		s.Fields.AddTag(e.Config.NodeClass)
	}
	for _, t := range e.Config.ExtraTags {
		s.Fields.AddTag(t)
	}
	switch s.Tuple.Protocol {
	case 6:
		s.Fields.AddTag("tcp")
	case 17:
		s.Fields.AddTag("udp")
	case 1:
		s.Fields.AddTag("icmp")
	}
	e.Plugins.NewSession(s)
}
