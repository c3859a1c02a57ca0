package payments

import (
	"strings"

	"github.com/google/uuid"
)

const confirmationPrefix = "CONF-"

// NewConfirmationCode returns an 8 character uppercase code meant to be
// read aloud character by character. Uniqueness is probabilistic; no
// registry of issued codes is kept.
func NewConfirmationCode() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

// StoredCode is the form written to the ledger.
func StoredCode(code string) string {
	if code == "" {
		return ""
	}
	if strings.HasPrefix(code, confirmationPrefix) {
		return code
	}
	return confirmationPrefix + code
}

// SpokenCode strips the prefix and spaces the characters so the agent
// reads them one at a time.
func SpokenCode(code string) string {
	code = strings.TrimPrefix(code, confirmationPrefix)
	if code == "" {
		return ""
	}
	chars := strings.Split(code, "")
	return strings.Join(chars, ", ")
}
