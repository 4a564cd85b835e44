package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tmsync/core"
)

// Credentials identify the tenant platform and its basic-auth account.
type Credentials struct {
	Platform string
	Username string
	Password string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Platform) == "" {
		return fmt.Errorf("transport: platform is required")
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("transport: api username is required")
	}
	return nil
}

type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

type StaticCredentials Credentials

func (c StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(c), nil
}

// SettingsCredentials reads credentials from the host settings store on every
// call so rotated passwords take effect without a restart.
type SettingsCredentials struct {
	Settings core.Settings
}

func NewSettingsCredentials(store core.SettingsStore) SettingsCredentials {
	return SettingsCredentials{Settings: core.NewSettings(store)}
}

func (s SettingsCredentials) Credentials(ctx context.Context) (Credentials, error) {
	var creds Credentials
	for _, item := range []struct {
		key    string
		target *string
	}{
		{core.SettingPlatform, &creds.Platform},
		{core.SettingAPIUsername, &creds.Username},
		{core.SettingAPIPassword, &creds.Password},
	} {
		value, _, err := s.Settings.String(ctx, item.key)
		if err != nil {
			return Credentials{}, err
		}
		*item.target = strings.TrimSpace(value)
	}
	return creds, nil
}

var (
	_ CredentialSource = StaticCredentials{}
	_ CredentialSource = SettingsCredentials{}
)
