package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/retro-leaderboard/internal/domain"
)

// SettingStore reads and writes the settings table
type SettingStore interface {
	GetSetting(ctx context.Context, name string) (string, error)
	PutSetting(ctx context.Context, name, value string) error
}

// loadCredentials reads the API login from settings, falling back to configured values
func loadCredentials(ctx context.Context, store SettingStore, fallback domain.Credentials) (domain.Credentials, error) {
	creds := fallback

	username, err := store.GetSetting(ctx, domain.SettingUsername)
	switch {
	case err == nil && username != "":
		creds.Username = username
	case err != nil && !errors.Is(err, domain.ErrSettingNotFound):
		return creds, fmt.Errorf("loading username setting: %w", err)
	}

	apiKey, err := store.GetSetting(ctx, domain.SettingAPIKey)
	switch {
	case err == nil && apiKey != "":
		creds.APIKey = apiKey
	case err != nil && !errors.Is(err, domain.ErrSettingNotFound):
		return creds, fmt.Errorf("loading api key setting: %w", err)
	}

	if creds.Username == "" || creds.APIKey == "" {
		return creds, domain.ErrMissingCredentials
	}
	return creds, nil
}
