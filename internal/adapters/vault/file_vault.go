package vault

import (
	"context"
	"delivery-match-service/internal/domain"
	"encoding/json"
	"fmt"
	"os"
)

// FileVault is a CardVault backed by a JSON file mapping user ids to their
// vaulted payment credentials. Card capture and tokenization live in an
// external vault service; this adapter covers local runs and demos where
// that service is a fixture file.
type FileVault struct {
	profiles map[string]profile
}

type profile struct {
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

func NewFileVault(jsonPath string) (*FileVault, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("file vault: read %q: %w", jsonPath, err)
	}

	var profiles map[string]profile
	if err := json.Unmarshal(bytes, &profiles); err != nil {
		return nil, fmt.Errorf("file vault: parse json: %w", err)
	}

	for userID, p := range profiles {
		if p.CustomerID == "" || p.PaymentMethodID == "" {
			return nil, fmt.Errorf("file vault: user %q: customer_id and payment_method_id are required", userID)
		}
	}

	return &FileVault{profiles: profiles}, nil
}

func (v *FileVault) PaymentProfile(ctx context.Context, userID string) (string, string, error) {
	p, ok := v.profiles[userID]
	if !ok {
		return "", "", fmt.Errorf("file vault: no payment profile for user %q: %w", userID, domain.ErrNotFound)
	}
	return p.CustomerID, p.PaymentMethodID, nil
}
