package server

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/auth"
	"github.com/MarcoPoloResearchLab/courier/internal/database"
	"github.com/MarcoPoloResearchLab/courier/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type testStack struct {
	handler http.Handler
	hub     *Hub
	issuer  *auth.TokenIssuer
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := database.NewRegistry(database.RegistryConfig{
		Migrator: database.NewSchemaMigrator(database.SchemaMigratorConfig{}),
	})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	hub := NewHub(nil)
	api, err := pipeline.New(context.Background(), pipeline.Config{
		Registry:    registry,
		DatabaseURL: filepath.Join(t.TempDir(), "server.db"),
		Workspace:   "ws-test",
		Broadcast:   hub.Broadcast,
	})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	t.Cleanup(func() { _ = api.Close() })

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "courier",
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{Pipeline: api, Hub: hub, Tokens: issuer})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return testStack{handler: handler, hub: hub, issuer: issuer}
}

func (s testStack) token(t *testing.T, account string, system bool, socialIDs ...string) string {
	t.Helper()
	token, _, err := s.issuer.Issue(context.Background(), auth.ConnectionClaims{
		SocialIDs:        socialIDs,
		System:           system,
		RegisteredClaims: jwt.RegisteredClaims{Subject: account},
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
