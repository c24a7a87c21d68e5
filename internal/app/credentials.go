package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fieldserve/fieldserve/internal/credential"
)

// NewAuthority builds the credential authority shared by the edge and the
// identity service. Revocations live in Redis so a logout at the identity
// service is seen by the edge; a nil client leaves revocation off.
func NewAuthority(cfg *Config, redisClient *redis.Client) (*credential.Authority, error) {
	if err := cfg.RequireCredentialSecret(); err != nil {
		return nil, err
	}
	opts := []credential.Option{
		credential.WithTTL(cfg.CredentialTTL),
		credential.WithIssuer(cfg.CredentialIssuer),
	}
	if cfg.RevocationEnabled && redisClient != nil {
		opts = append(opts, credential.WithRevocations(credential.NewRedisRevocationList(redisClient, "")))
	}
	authority, err := credential.NewAuthority([]byte(cfg.CredentialSecret), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return authority, nil
}
