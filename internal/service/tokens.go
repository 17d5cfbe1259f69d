package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"bodyconsumer/internal/auth"
	"bodyconsumer/internal/store"
)

const tokenPrefix = "bc_"

type CreatedToken struct {
	ID    string
	Token string
}

// CreateToken mints an API token for subject. The plain token is only
// returned here; the catalog keeps its hash.
func (s *Service) CreateToken(ctx context.Context, subject, name string, isAdmin bool) (CreatedToken, error) {
	if s.catalog == nil {
		return CreatedToken{}, fmt.Errorf("%w: token store not configured", ErrUnavailable)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return CreatedToken{}, fmt.Errorf("%w: subject required", ErrInvalidInput)
	}

	token, err := randomToken()
	if err != nil {
		return CreatedToken{}, err
	}
	id, err := s.catalog.CreateToken(ctx, subject, strings.TrimSpace(name), auth.HashToken(token), isAdmin)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return CreatedToken{}, ErrConflict
		}
		return CreatedToken{}, err
	}
	return CreatedToken{ID: id.String(), Token: token}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
