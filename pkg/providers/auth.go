package providers

import "context"

// BearerToken is a static AuthenticationProvider for registers that accept a
// long-lived token.
type BearerToken string

func (t BearerToken) Headers(_ context.Context) (map[string]string, error) {
	return map[string]string{"Authorization": "Bearer " + string(t)}, nil
}
