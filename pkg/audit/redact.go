package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// redactEvent hashes the identifiers that can be replayed or tied to a person.
func redactEvent(ev Event, salt []byte) Event {
	ev.UserID = hashString(ev.UserID, salt)
	ev.Token = hashString(ev.Token, salt)
	return ev
}

func hashString(v string, salt []byte) string {
	if v == "" {
		return ""
	}
	return hashBytes([]byte(v), salt)
}

func hashBytes(b []byte, salt []byte) string {
	h := sha256.New()
	if len(salt) > 0 {
		_, _ = h.Write(salt)
	}
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
