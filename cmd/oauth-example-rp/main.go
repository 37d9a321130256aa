// Command oauth-example-rp is a minimal relying party protected by the
// oauthclient middleware. Point it at any OIDC provider with a discovery
// document.
package main

import (
	"crypto/rand"
	"encoding/json"
	"flag"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pardot/oauthclient"
	"github.com/pardot/oauthclient/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg := struct {
		MetadataURL  string
		ClientID     string
		ClientSecret string
		BaseURL      string
		Listen       string
	}{
		MetadataURL:  "http://localhost:8085/.well-known/openid-configuration",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      "http://localhost:8084",
		Listen:       "localhost:8084",
	}

	flag.StringVar(&cfg.MetadataURL, "metadata-url", cfg.MetadataURL, "provider discovery document URL")
	flag.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "client ID")
	flag.StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "client secret")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "base URL of this relying party")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to listen on")

	flag.Parse()

	cli := oauthclient.New(oauthclient.Config{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		ServerMetadataURL: cfg.MetadataURL,
		Scopes:            []string{"openid", "profile", "email"},
		Logger:            logger,
	})

	// session keys are ephemeral, sessions do not survive a restart
	authKey := make([]byte, 64)
	encKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, authKey); err != nil {
		logger.WithError(err).Fatal("generating session authentication key")
	}
	if _, err := io.ReadFull(rand.Reader, encKey); err != nil {
		logger.WithError(err).Fatal("generating session encryption key")
	}

	h := &middleware.Handler{
		Client:                   cli,
		BaseURL:                  cfg.BaseURL,
		RedirectURL:              cfg.BaseURL + "/callback",
		SessionAuthenticationKey: authKey,
		SessionEncryptionKey:     encKey,
	}

	r := mux.NewRouter()
	r.Handle("/", h.Wrap(http.HandlerFunc(handleHome)))
	r.Handle("/callback", h.Wrap(http.HandlerFunc(handleHome)))

	logger.WithField("addr", cfg.Listen).Info("listening")
	logger.Fatal(http.ListenAndServe(cfg.Listen, r))
}

func handleHome(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(claims)
}
