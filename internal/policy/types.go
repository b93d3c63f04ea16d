package policy

import (
	"strings"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

// AuthMode tags which identity is acting: the hosted agent itself, or a
// human delegating through it (spec.md §4.4).
type AuthMode string

const (
	AuthModeBot       AuthMode = "bot"
	AuthModeIncognito AuthMode = "incognito"
)

// splitRepo turns "owner/repo" into its two parts.
func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", gatewayerr.New(gatewayerr.BadRequest, "repository must be of the form owner/repo")
	}
	return parts[0], parts[1], nil
}
