// Package econfig loads this engine's process configuration: node name,
// node class, extra tags, SMTP IP-header names, and the HTTP
// request/response header -> field maps (§6). Modeled on the teacher's
// ingest/config loader: a gcfg-style `.conf` file decoded straight into a
// struct via github.com/gravwell/gcfg, a hard file-size cap, and
// package-level sentinel errors.
package econfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gravwell/gcfg"

	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/field"
)

const maxConfigSize int64 = 4 * 1024 * 1024 // 4MB, mirrors the teacher's own cap

var (
	ErrConfigFileTooLarge = errors.New("econfig: config file is too large")
	ErrMissingNodeName    = errors.New("econfig: [Global] Node-Name is required")
	ErrUnknownFieldType   = errors.New("econfig: unknown header field type")
	ErrUnknownFieldName   = errors.New("econfig: header routed to an undefined field name")
)

// HeaderSpec is one `[Http-Request-Header "name"]` / `[Http-Response-Header
// "name"]` section: the field it routes to and how to interpret it.
type HeaderSpec struct {
	Field string // registered field name, e.g. "http.useragent"
	Type  string // "string" (default), "int", "ip-hash"
}

// Raw is the as-parsed configuration file, before header names are
// resolved against a field.Registry.
type Raw struct {
	NodeName      string
	NodeClass     string
	ExtraTags     []string
	SMTPIPHeaders []string

	HTTPRequestHeaders  map[string]HeaderSpec
	HTTPResponseHeaders map[string]HeaderSpec
}

// cfgReadType is the shape gcfg decodes a .conf file into directly: one
// [Global] section plus the repeatable, named header-routing subsections.
// Field names follow gcfg's Key_Name <-> Key-Name convention.
type cfgReadType struct {
	Global struct {
		Node_Name      string
		Node_Class     string
		Extra_Tag      []string
		SMTP_IP_Header []string
	}
	Http_Request_Header  map[string]*headerSection
	Http_Response_Header map[string]*headerSection
}

type headerSection struct {
	Field string
	Type  string
}

// LoadFile reads and parses a gcfg-style `.conf` file at path.
func LoadFile(path string) (Raw, error) {
	fin, err := os.Open(path)
	if err != nil {
		return Raw{}, err
	}
	defer fin.Close()
	fi, err := fin.Stat()
	if err != nil {
		return Raw{}, err
	}
	if fi.Size() > maxConfigSize {
		return Raw{}, ErrConfigFileTooLarge
	}
	return Parse(fin)
}

// Parse reads a gcfg-style config from r via gcfg.ReadStringInto, then
// reshapes the result into Raw. Keys repeated within a section (Extra-Tag,
// SMTP-IP-Header) accumulate, since gcfg appends repeated keys into a
// []string field automatically.
func Parse(r io.Reader) (Raw, error) {
	bb := bytes.NewBuffer(nil)
	if n, err := io.Copy(bb, io.LimitReader(r, maxConfigSize+1)); err != nil {
		return Raw{}, err
	} else if n > maxConfigSize {
		return Raw{}, ErrConfigFileTooLarge
	}

	var cr cfgReadType
	if err := gcfg.ReadStringInto(&cr, bb.String()); err != nil {
		return Raw{}, err
	}

	raw := Raw{
		NodeName:            cr.Global.Node_Name,
		NodeClass:           cr.Global.Node_Class,
		ExtraTags:           cr.Global.Extra_Tag,
		SMTPIPHeaders:       cr.Global.SMTP_IP_Header,
		HTTPRequestHeaders:  make(map[string]HeaderSpec, len(cr.Http_Request_Header)),
		HTTPResponseHeaders: make(map[string]HeaderSpec, len(cr.Http_Response_Header)),
	}
	for name, hs := range cr.Http_Request_Header {
		raw.HTTPRequestHeaders[strings.ToLower(name)] = HeaderSpec{Field: hs.Field, Type: hs.Type}
	}
	for name, hs := range cr.Http_Response_Header {
		raw.HTTPResponseHeaders[strings.ToLower(name)] = HeaderSpec{Field: hs.Field, Type: hs.Type}
	}

	if raw.NodeName == "" {
		return Raw{}, ErrMissingNodeName
	}
	return raw, nil
}

// Resolve builds an engine.Config from a parsed Raw, looking up every
// configured header's field name against reg. Fails closed: an
// unresolvable field name or type is a load-time error, not a silent
// drop.
func Resolve(raw Raw, reg *field.Registry) (engine.Config, error) {
	cfg := engine.Config{
		NodeName:            raw.NodeName,
		NodeClass:           raw.NodeClass,
		ExtraTags:           raw.ExtraTags,
		SMTPIPHeaders:       raw.SMTPIPHeaders,
		HTTPRequestHeaders:  make(map[string]engine.HeaderField, len(raw.HTTPRequestHeaders)),
		HTTPResponseHeaders: make(map[string]engine.HeaderField, len(raw.HTTPResponseHeaders)),
	}

	if err := resolveHeaders(raw.HTTPRequestHeaders, reg, cfg.HTTPRequestHeaders); err != nil {
		return engine.Config{}, err
	}
	if err := resolveHeaders(raw.HTTPResponseHeaders, reg, cfg.HTTPResponseHeaders); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

func resolveHeaders(specs map[string]HeaderSpec, reg *field.Registry, out map[string]engine.HeaderField) error {
	for name, spec := range specs {
		def, ok := reg.LookupByName(spec.Field)
		if !ok {
			return fmt.Errorf("%w: %q -> %q", ErrUnknownFieldName, name, spec.Field)
		}
		typ, err := parseFieldType(spec.Type)
		if err != nil {
			return err
		}
		out[name] = engine.HeaderField{ID: def.ID, Type: typ}
	}
	return nil
}

func parseFieldType(s string) (field.Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return field.TypeString, nil
	case "int":
		return field.TypeInt, nil
	case "ip-hash", "iphash":
		return field.TypeIPHash, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFieldType, s)
	}
}
