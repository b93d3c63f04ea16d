// Package githubhost wraps the GitHub App client the policy engine uses
// to query the repo host for live PR state, grounded directly in
// apps/ReleaseParty/backend/internal/githubapp/client.go's App type and
// the same ghinstallation/go-github pairing.
package githubhost

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
)

type App struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPEM  []byte
}

func New(appID, installationID int64, privateKeyPEM []byte) (*App, error) {
	if len(strings.TrimSpace(string(privateKeyPEM))) == 0 {
		return nil, fmt.Errorf("empty private key PEM")
	}
	return &App{
		AppID:          appID,
		InstallationID: installationID,
		PrivateKeyPEM:  privateKeyPEM,
	}, nil
}

// InstallationClient returns a go-github client authenticated as the
// app's installation, exactly as githubapp.App.InstallationClient does.
func (a *App) InstallationClient() (*github.Client, error) {
	tr, err := ghinstallation.New(http.DefaultTransport, a.AppID, a.InstallationID, a.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	return github.NewClient(&http.Client{Transport: tr}), nil
}
