// Package schema declares the concrete field ids this engine's
// dissectors write to and builds the default field.Registry for them.
// The field-definition registry's storage/lookup-by-name machinery is
// the out-of-scope collaborator §6 describes; this package only owns
// the small, fixed set of ids the dissectors in this repo know about.
package schema

import "github.com/aol/moloch/field"

const (
	Host field.ID = iota
	URLs
	HTTPRequestVersion
	HTTPResponseVersion
	HTTPBodyMD5
	HTTPUserAgent
	HTTPXFF

	SSHVersion
	SSHKey

	IRCNick
	IRCChannel

	DNSHost
	DNSIP

	EmailSrc
	EmailDst
	EmailCC
	EmailFrom
	EmailMessageID
	EmailSubject
	EmailFilename
	EmailMD5
	EmailContentType
	EmailIP
)

// NewDefaultRegistry builds the registry every dissector in this repo
// expects to be given via engine.Engine.Registry.
func NewDefaultRegistry() *field.Registry {
	r := field.NewRegistry()

	r.Define(Host, "host", field.TypeStringHash, 0)
	r.Define(URLs, "urls", field.TypeStringHash, 0)
	r.Define(HTTPRequestVersion, "http.requestVersion", field.TypeString, 0)
	r.Define(HTTPResponseVersion, "http.responseVersion", field.TypeString, 0)
	r.Define(HTTPBodyMD5, "http.md5", field.TypeStringHash, 0)
	r.Define(HTTPUserAgent, "http.useragent", field.TypeStringHash, 0)
	r.Define(HTTPXFF, "http.xff", field.TypeIPHash, 0)

	r.Define(SSHVersion, "ssh.version", field.TypeString, 0)
	r.Define(SSHKey, "ssh.key", field.TypeStringHash, 0)

	r.Define(IRCNick, "irc.nick", field.TypeStringHash, 0)
	r.Define(IRCChannel, "irc.channel", field.TypeStringHash, 0)

	r.Define(DNSHost, "dns.host", field.TypeStringHash, 0)
	r.Define(DNSIP, "dns.ip", field.TypeIPHash, 0)

	r.Define(EmailSrc, "email.src", field.TypeStringHash, 0)
	r.Define(EmailDst, "email.dst", field.TypeStringHash, 0)
	r.Define(EmailCC, "email.cc", field.TypeStringHash, 0)
	r.Define(EmailFrom, "email.from", field.TypeStringHash, 0)
	r.Define(EmailMessageID, "email.message-id", field.TypeStringHash, 0)
	r.Define(EmailSubject, "email.subject", field.TypeStringHash, field.FlagForceUTF8)
	r.Define(EmailFilename, "email.fn", field.TypeStringHash, 0)
	r.Define(EmailMD5, "email.md5", field.TypeStringHash, 0)
	r.Define(EmailContentType, "email.content-type", field.TypeStringHash, 0)
	r.Define(EmailIP, "email.ip", field.TypeIPHash, 0)

	return r
}
