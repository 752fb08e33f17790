package tool

import (
	"strings"

	"github.com/google/uuid"
)

const ReferencePrefix = "RL-"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateReference returns a payment reference such as "RL-3F2A9C0D1B7E4A55".
func GenerateReference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ReferencePrefix + strings.ToUpper(hex[:16])
}
