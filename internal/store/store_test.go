package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/bazaar/internal/auth"
	"github.com/matheus3301/bazaar/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed() {
		t.Error("second Migrate() should report no change")
	}
	if result.From != 2 || result.Version != 2 {
		t.Errorf("result = %+v, want version 2 (init + peers)", result)
	}
}

func TestMigrateFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bazaar.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.From != 0 || result.Version != 2 || !result.Changed() {
		t.Errorf("result = %+v", result)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("bazaar.db mode = %o, want 600", perm)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}

	_, err := db.Migrate()
	var dse *DirtySchemaError
	if !errors.As(err, &dse) || dse.Version != 2 {
		t.Fatalf("Migrate() error = %v, want *DirtySchemaError at 2", err)
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	db := testDB(t)

	c, err := db.LoadCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatalf("fresh db has credentials %+v", c)
	}

	if err := db.SaveCredentials(auth.Credentials{Token: "t1", UserID: 3, Username: "ana"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCredentials(auth.Credentials{Token: "t2", UserID: 3, Username: "ana"}); err != nil {
		t.Fatal(err)
	}

	c, err = db.LoadCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Token != "t2" || c.UserID != 3 || c.Username != "ana" {
		t.Errorf("LoadCredentials() = %+v, want latest save", c)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("credentials rows = %d, want 1", rows)
	}

	if err := db.ClearCredentials(); err != nil {
		t.Fatal(err)
	}
	if c, _ := db.LoadCredentials(); c != nil {
		t.Errorf("credentials after clear = %+v", c)
	}
}

func TestPeersUpsertKeepsKnownFields(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertPeers([]chat.User{{ID: 9, Username: "bob", Email: "bob@example.com", Name: "Bob"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertPeers([]chat.User{{ID: 9, Username: "bobby"}, {ID: 0, Username: "ignored"}}); err != nil {
		t.Fatal(err)
	}

	p, err := db.GetPeer(9)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Username != "bobby" || p.Email != "bob@example.com" || p.Name != "Bob" {
		t.Errorf("GetPeer(9) = %+v", p)
	}

	if p, _ := db.GetPeer(404); p != nil {
		t.Errorf("GetPeer(404) = %+v, want nil", p)
	}
}

func TestSearchPeers(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertPeers([]chat.User{
		{ID: 9, Username: "bob"},
		{ID: 10, Username: "carla", Name: "Carla Ruiz"},
		{ID: 11, Username: "dora", Email: "bo@example.com"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := db.SearchPeers("bo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 9 || got[1].ID != 11 {
		t.Errorf("SearchPeers(bo) = %+v, want bob and dora", got)
	}
}

func TestSessionState(t *testing.T) {
	db := testDB(t)

	if v, err := db.GetState(StateLastRoom); err != nil || v != "" {
		t.Fatalf("GetState(unset) = %q, %v", v, err)
	}
	if err := db.SetState(StateLastRoom, "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetState(StateLastRoom, "7"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetState(StateLastRoom); v != "7" {
		t.Errorf("GetState() = %q, want 7", v)
	}
}
