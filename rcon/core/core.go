package core

import (
	"errors"
	"regexp"
)

var (
	// Terminator for the auth result and for every command response
	Terminator = []byte("\n\x04")

	// Delimiter ending the self-terminating challenge frame
	ChallengeDelim = []byte("\n\n")

	// ChallengeRe matches a complete challenge frame and captures the seed
	ChallengeRe = regexp.MustCompile(`^### Digest seed: (.{16})\n\n$`)
)

const (
	// Every outbound frame starts with this byte
	FrameStart = '\x02'

	// Literal prefix of the challenge frame
	ChallengePrefix = "### Digest seed: "

	// Number of characters in a challenge seed
	SeedLength = 16

	// The auth response must start with this text to be accepted
	MsgAuthSuccess = "Authentication success"

	// The command issued with the login hash
	loginCommand = "login "
)

var (
	// ErrBadChallenge - a complete challenge frame did not match the expected pattern
	ErrBadChallenge = errors.New("malformed digest seed challenge")
)
