//go:build integration

package firestore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/config"
	pfirestore "github.com/hanko-field/cms/internal/platform/firestore"
	"github.com/hanko-field/cms/internal/repositories"
	rfirestore "github.com/hanko-field/cms/internal/repositories/firestore"
)

// Run with a local emulator:
//
//	gcloud beta emulators firestore start --host-port=127.0.0.1:8681
//	FIRESTORE_EMULATOR_HOST=127.0.0.1:8681 go test -tags integration ./internal/repositories/firestore/...
func TestContentRepositoryAgainstEmulator(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "cms-test", EmulatorHost: host})
	registry, err := rfirestore.NewRegistry(provider)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	key := "itest." + ulid.Make().String() + ".title"
	repo := registry.Content()

	saved, err := repo.Insert(ctx, domain.ContentEntry{Key: key, Language: "fr", Value: "Bonjour", ContentType: domain.ContentTypeText})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Insert(ctx, domain.ContentEntry{Key: key, Language: "fr", Value: "Again"}); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate tuple, got %v", err)
	}

	saved.Value = "Salut"
	if _, err := repo.Update(ctx, saved); err != nil {
		t.Fatalf("Update: %v", err)
	}
	found, err := repo.FindExact(ctx, key, "fr", nil)
	if err != nil || found.Value != "Salut" {
		t.Fatalf("unexpected FindExact result %+v %v", found, err)
	}
	region := "HT"
	if _, err := repo.FindExact(ctx, key, "fr", &region); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found for regional tuple, got %v", err)
	}

	rows, err := repo.List(ctx, repositories.ContentQuery{KeyPrefix: key[:len(key)-6], Languages: []string{"fr", "en"}})
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected List result %+v %v", rows, err)
	}
	if err := registry.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
