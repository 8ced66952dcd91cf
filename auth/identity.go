package auth

import (
	"chat-relay/errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Identity is what a connection claims to be at handshake.
// Both fields empty means an anonymous connection.
type Identity struct {
	ParticipantID string `validate:"required_with=DisplayName,max=128"`
	DisplayName   string `validate:"required_with=ParticipantID,max=128"`
}

func (i Identity) IsAnonymous() bool {
	return i.ParticipantID == "" && i.DisplayName == ""
}

// Resolver extracts the handshake identity of an upgrade request.
// With a verifier the identity comes from a signed token only, otherwise it is
// trusted from the participantId and displayName query parameters.
type Resolver struct {
	verifier *TokenVerifier
}

func NewResolver(verifier *TokenVerifier) Resolver {
	return Resolver{verifier: verifier}
}

func (r Resolver) Resolve(req *http.Request) (Identity, error) {
	query := req.URL.Query()
	var identity Identity

	if r.verifier == nil {
		identity = Identity{
			ParticipantID: strings.TrimSpace(query.Get("participantId")),
			DisplayName:   strings.TrimSpace(query.Get("displayName")),
		}
	} else {
		token := bearer(req)
		if token == "" {
			token = query.Get("token")
		}
		if token == "" {
			return Identity{}, nil
		}
		claims, err := r.verifier.ValidateToken(token)
		if err != nil {
			return Identity{}, err
		}
		identity = Identity{ParticipantID: claims.ParticipantID, DisplayName: claims.DisplayName}
	}

	if err := validate.Struct(identity); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errors.ErrIdentityMissing, err)
	}
	return identity, nil
}

func bearer(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
