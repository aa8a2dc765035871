package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateCard(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/cards" {
			t.Errorf("path = %s, want /cards", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"idList": q.Get("idList"),
			"name":   q.Get("name"),
			"desc":   q.Get("desc"),
			"key":    q.Get("key"),
			"token":  q.Get("token"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"card-1","name":"Conversation abc","shortUrl":"https://trello.example/c/1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key", "api-token", "list-1", nil)

	card, err := c.CreateCard(context.Background(), "Conversation abc", "a transcript")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	if card.ID != "card-1" {
		t.Errorf("card id = %q, want card-1", card.ID)
	}
	if card.ShortURL != "https://trello.example/c/1" {
		t.Errorf("card url = %q", card.ShortURL)
	}
	if gotQuery["idList"] != "list-1" || gotQuery["key"] != "api-key" || gotQuery["token"] != "api-token" {
		t.Errorf("credentials not passed as query parameters: %+v", gotQuery)
	}
	if gotQuery["name"] != "Conversation abc" || gotQuery["desc"] != "a transcript" {
		t.Errorf("card fields not passed: %+v", gotQuery)
	}
}

func TestCreateCardTruncatesDescription(t *testing.T) {
	var gotDescLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDescLen = len(r.URL.Query().Get("desc"))
		w.Write([]byte(`{"id":"card-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", "list", nil)

	longDesc := strings.Repeat("x", descriptionLimit+500)
	if _, err := c.CreateCard(context.Background(), "name", longDesc); err != nil {
		t.Fatalf("create card: %v", err)
	}
	if gotDescLen != descriptionLimit {
		t.Fatalf("description length = %d, want %d", gotDescLen, descriptionLimit)
	}
}

func TestCreateCardErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid key"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", "token", "list", nil)

	if _, err := c.CreateCard(context.Background(), "name", "desc"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestCreateCardUnconfigured(t *testing.T) {
	c := NewClient("", "", "", "", nil)

	if c.Configured() {
		t.Fatal("client without credentials must not report configured")
	}
	_, err := c.CreateCard(context.Background(), "name", "desc")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestConfigured(t *testing.T) {
	if !NewClient("", "k", "t", "l", nil).Configured() {
		t.Fatal("expected configured with all credentials set")
	}
	if NewClient("", "k", "", "l", nil).Configured() {
		t.Fatal("missing token must not report configured")
	}
}
