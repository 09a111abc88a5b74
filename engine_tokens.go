package passgate

import (
	"errors"

	"github.com/MrEthical07/passgate/internal/flows"
	"github.com/MrEthical07/passgate/jwt"
)

func (e *Engine) verifyToken(token string, scope jwt.Scope) (*jwt.Claims, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrMissingInput
	}
	claims, err := e.codec.Verify(token)
	if err != nil {
		return nil, ErrTokenInvalidOrExpired
	}
	if claims.Scope != scope {
		return nil, ErrScopeMismatch
	}
	return claims, nil
}

// ValidateAccessToken decodes an access token into the identity it asserts.
func (e *Engine) ValidateAccessToken(token string) (*Identity, error) {
	claims, err := e.verifyToken(token, jwt.ScopeAccess)
	if err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, ErrTokenInvalidOrExpired
	}
	id := &Identity{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      claims.Role,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// ValidateVerifyToken returns the email a verify-scope token was minted for.
func (e *Engine) ValidateVerifyToken(token string) (string, error) {
	claims, err := e.verifyToken(token, jwt.ScopeVerify)
	if err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", ErrTokenInvalidOrExpired
	}
	return claims.Email, nil
}

// CheckVerifyScope is the precondition for FinalizeLogin: token must be a
// live verify-scope token minted for email.
func (e *Engine) CheckVerifyScope(token, email string) error {
	bound, err := e.ValidateVerifyToken(token)
	if err != nil {
		if errors.Is(err, ErrMissingInput) {
			return ErrScopeMismatch
		}
		return err
	}
	if flows.NormalizeEmail(bound) != flows.NormalizeEmail(email) {
		return ErrScopeMismatch
	}
	return nil
}
