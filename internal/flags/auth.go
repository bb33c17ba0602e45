package flags

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
)

type AuthFlags struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func NewAuthFlags() *AuthFlags {
	return &AuthFlags{
		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  24 * time.Hour,
	}
}

func (f *AuthFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.JWTSecret, "jwt-secret", f.JWTSecret, "HMAC secret used to sign and verify tokens")
	fs.DurationVar(&f.TokenTTL, "token-ttl", f.TokenTTL, "Lifetime of minted tokens")
}

func (f *AuthFlags) GetResolver() (*auth.Resolver, error) {
	if f.JWTSecret == "" {
		return nil, errors.New("--jwt-secret or JWT_SECRET is required")
	}
	return auth.NewResolver(f.JWTSecret, f.TokenTTL), nil
}
