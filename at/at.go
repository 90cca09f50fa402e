// Package at holds the modem side of the protocol: the AT command grammar and
// the result codes the pipeline reacts to.
package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Command prefix every modem command starts with
	Prefix = "AT"

	// Response Codes
	OK    = "OK"
	ERROR = "ERROR"
)

// Chain separators accepted between commands of one request.
const (
	SepSemicolon = ';'
	SepLF        = '\n'
	SepCR        = '\r'
)

// extended lists the indicators that may follow the AT prefix directly
// (e.g. AT+CSQ, AT^SYSINFO, AT%IPR, AT&F).
const extended = "+^%&"
