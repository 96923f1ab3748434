package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/logger"
)

// AuthKey is the hex-encoded token signing key.
type AuthKey string

// ProvideAuthKey uses the configured key, or loads or generates one next to the database.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Auth.TokenKey != "" {
		log.Info("Authentication key loaded from configuration")
		return AuthKey(cfg.Auth.TokenKey), nil
	}

	dir := filepath.Dir(cfg.Database.Path)
	key, err := auth.LoadOrGenerateKey(dir)
	if err != nil {
		return "", err
	}

	log.Info("Authentication key loaded",
		"dir", dir,
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(string(key), cfg.Auth.AccessTokenDuration)
}
