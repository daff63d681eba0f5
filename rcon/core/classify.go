package core

import "strings"

type rule struct {
	prefix string
	code   ErrorCode
}

// Order matters: the first matching prefix wins.
var rules = []rule{
	{prefix: "error: not authenticated:", code: NotAuthenticated},
	{prefix: "Restricted:", code: CommandRestricted},
	{prefix: "Failed to process command", code: CommandFailed},
	{prefix: "error: you are not authorised to use the command", code: CommandUnauthorized},
	{prefix: "rcon: unknown command:", code: CommandUnknown},
}

// Classify maps a completed command response to either a successful
// result or a classified server error. Unmatched text is returned
// verbatim. The auth response is never passed through here.
func Classify(text string) (string, error) {
	for _, r := range rules {
		if strings.HasPrefix(text, r.prefix) {
			return "", NewError(r.code, text, nil)
		}
	}

	return text, nil
}

// IsAuthSuccess reports whether the handshake reply accepts the login
func IsAuthSuccess(text string) bool {
	return strings.HasPrefix(text, MsgAuthSuccess)
}
