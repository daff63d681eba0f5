package core

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
)

// LoginHash returns the lowercase hex MD5 digest of seed followed by
// password, with no separator.
func LoginHash(seed, password string) string {
	sum := md5.Sum([]byte(seed + password))
	return hex.EncodeToString(sum[:])
}

// FormatCommand frames a command for the wire: 0x02, text, newline
func FormatCommand(text string) []byte {
	b := make([]byte, 0, len(text)+2)
	b = append(b, FrameStart)
	b = append(b, text...)
	return append(b, '\n')
}

// FormatLogin frames the login command carrying hash
func FormatLogin(hash string) []byte {
	return FormatCommand(loginCommand + hash)
}

// ParseChallenge scans b for the self-delimited challenge frame.
// ok is false when more bytes are needed. Once the frame is complete
// (up to the first blank line) it must match ChallengeRe, otherwise
// ErrBadChallenge is returned. rest holds any bytes after the frame.
func ParseChallenge(b []byte) (string, []byte, bool, error) {
	idx := bytes.Index(b, ChallengeDelim)
	if idx < 0 {
		return "", nil, false, nil
	}

	end := idx + len(ChallengeDelim)
	m := ChallengeRe.FindSubmatch(b[:end])
	if m == nil {
		return "", nil, true, ErrBadChallenge
	}

	return string(m[1]), clone(b[end:]), true, nil
}

// SplitFrame scans b for the first terminator (\n 0x04). Returns a
// triple of the frame (terminator stripped), the bytes after it, and a
// bool indicating whether a complete frame was found.
func SplitFrame(b []byte) ([]byte, []byte, bool) {
	if idx := bytes.Index(b, Terminator); idx >= 0 {
		return clone(b[:idx]), clone(b[idx+len(Terminator):]), true
	}

	return nil, b, false
}

// return a clone of  the src byte slice
func clone(src []byte) []byte {
	return append(src[:0:0], src...)
}
