package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"techcare/internal/config"
	"techcare/internal/logging"
	"techcare/internal/models"
	"techcare/internal/service"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid or expired token")
)

// tokenClaims mirrors the access tokens issued by the identity provider.
type tokenClaims struct {
	jwt.Claims
	Email        string `json:"email"`
	UserMetadata struct {
		Role     string `json:"role"`
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
}

// TokenVerifier checks HS256-signed bearer tokens.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = jwt.DefaultLeeway
	}
	return &TokenVerifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   leeway,
		now:      time.Now,
	}
}

// Verify parses and validates a raw token and returns the caller identity.
func (v *TokenVerifier) Verify(raw string) (service.Identity, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return service.Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	var claims tokenClaims
	if err := tok.Claims(v.secret, &claims); err != nil {
		return service.Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	expected := jwt.Expected{Issuer: v.issuer, Time: v.now()}
	if v.audience != "" {
		expected.AnyAudience = jwt.Audience{v.audience}
	}
	if err := claims.ValidateWithLeeway(expected, v.leeway); err != nil {
		return service.Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" || claims.Expiry == nil {
		return service.Identity{}, fmt.Errorf("%w: subject and expiry are required", errInvalidToken)
	}

	return service.Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		FullName:    claims.UserMetadata.FullName,
		Role:        claims.UserMetadata.Role,
		GrantedRole: claims.AppMetadata.Role,
	}, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	return strings.TrimSpace(token), nil
}

type authedHandler func(w http.ResponseWriter, r *http.Request, actor *models.Profile)

// authed verifies the bearer token and resolves the caller's profile before
// calling next.
func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		identity, err := s.verifier.Verify(raw)
		if err != nil {
			logging.FromContext(r.Context(), s.logger).Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, errInvalidToken.Error())
			return
		}
		actor, err := s.svc.Accounts.EnsureProfile(r.Context(), identity)
		if err != nil {
			serviceError(w, r, s.logger, err)
			return
		}
		next(w, r, actor)
	}
}

// adminOnly rejects non-admin callers.
func (s *Server) adminOnly(next authedHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, service.ErrForbidden.Error())
			return
		}
		next(w, r, actor)
	})
}
