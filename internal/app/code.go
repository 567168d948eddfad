package app

import "crypto/rand"

// Unambiguous uppercase alphabet for human-facing order codes.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newOrderCode() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return "TKT-" + string(b)
}
