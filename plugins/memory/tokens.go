package memory

import (
	"context"
	"fmt"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// StaticTokenSource serves access tokens from configuration, keyed by
// provider and then by user id. The "*" user matches anyone.
type StaticTokenSource map[string]map[string]string

var _ plugin.TokenSource = StaticTokenSource(nil)

func (s StaticTokenSource) Token(ctx context.Context, userID, provider string) (string, error) {
	users := s[provider]
	if token := users[userID]; token != "" {
		return token, nil
	}
	if token := users["*"]; token != "" {
		return token, nil
	}
	if userID == "" {
		return "", fmt.Errorf("no %s token configured and the run has no userId", provider)
	}
	return "", fmt.Errorf("no %s token configured for user %s", provider, userID)
}
