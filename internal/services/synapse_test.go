package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/mlsync/internal/shared"
	"golang.org/x/time/rate"
)

func TestSynapseService(t *testing.T) {
	t.Run("NewSynapseService", func(t *testing.T) {
		t.Run("creates service with default URL", func(t *testing.T) {
			svc, err := NewSynapseService("", "token", nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if svc.baseURL != synapseBaseURL {
				t.Errorf("expected baseURL to be %s, got %s", synapseBaseURL, svc.baseURL)
			}
		})

		t.Run("trims trailing slash from custom URL", func(t *testing.T) {
			svc, err := NewSynapseService("http://localhost:9000/", "token", nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if svc.baseURL != "http://localhost:9000" {
				t.Errorf("expected trimmed baseURL, got %s", svc.baseURL)
			}
		})

		t.Run("fails without access token", func(t *testing.T) {
			if _, err := NewSynapseService("", "  ", nil); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Name", func(t *testing.T) {
		svc, _ := NewSynapseService("", "token", nil)
		if svc.Name() != "Synapse" {
			t.Errorf("expected name to be 'Synapse', got %s", svc.Name())
		}
	})

	t.Run("GetGroup", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
			}

			switch r.URL.Path {
			case "/team/3324230":
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{"id": "3324230", "name": "AD1 Participants"})
			default:
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]any{"reason": "Team does not exist"})
			}
		}))
		defer server.Close()

		svc, _ := NewSynapseService(server.URL, "secret", nil)

		t.Run("resolves a team", func(t *testing.T) {
			group, err := svc.GetGroup(context.Background(), "3324230")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if group.ID != "3324230" || group.Name != "AD1 Participants" {
				t.Errorf("unexpected group: %+v", group)
			}
		})

		t.Run("maps 404 to ErrNotFound", func(t *testing.T) {
			_, err := svc.GetGroup(context.Background(), "999")
			if !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})

		t.Run("requires a group id", func(t *testing.T) {
			if _, err := svc.GetGroup(context.Background(), ""); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
		})
	})

	t.Run("GetGroupMembers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/teamMembers/42" {
				t.Errorf("expected path /teamMembers/42, got %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("offset"); got != "100" {
				t.Errorf("expected offset 100, got %s", got)
			}
			if got := r.URL.Query().Get("limit"); got != "50" {
				t.Errorf("expected limit 50, got %s", got)
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"totalNumberOfResults": 101,
				"results": []map[string]any{
					{"teamId": "42", "member": map[string]any{"ownerId": "1", "userName": "alice", "isIndividual": true}},
					{"teamId": "42", "member": map[string]any{"ownerId": "2", "userName": "lab", "isIndividual": false}},
				},
			})
		}))
		defer server.Close()

		svc, _ := NewSynapseService(server.URL, "secret", nil)
		page, err := svc.GetGroupMembers(context.Background(), "42", 100, 50)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if page.Total != 101 {
			t.Errorf("expected total 101, got %d", page.Total)
		}
		if len(page.Members) != 2 {
			t.Fatalf("expected 2 members, got %d", len(page.Members))
		}
		if page.Members[0].OwnerID != "1" || !page.Members[0].IsIndividual {
			t.Errorf("unexpected first member: %+v", page.Members[0])
		}
		if page.Members[1].IsIndividual {
			t.Error("expected second member to be a team")
		}
	})

	t.Run("ResolveProfile", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/userProfile/1":
				json.NewEncoder(w).Encode(map[string]any{
					"ownerId":   "1",
					"firstName": "Alice",
					"lastName":  "Liddell",
					"emails":    []string{"alice@example.com", "alt@example.com"},
				})
			case "/userProfile/500":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		svc, _ := NewSynapseService(server.URL, "secret", nil)

		t.Run("resolves a profile", func(t *testing.T) {
			profile, err := svc.ResolveProfile(context.Background(), "1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if profile.FirstName != "Alice" || profile.LastName != "Liddell" {
				t.Errorf("unexpected profile: %+v", profile)
			}
			if profile.PrimaryEmail() != "alice@example.com" {
				t.Errorf("expected first listed email, got %s", profile.PrimaryEmail())
			}
		})

		t.Run("wraps missing profile", func(t *testing.T) {
			_, err := svc.ResolveProfile(context.Background(), "404")
			if !errors.Is(err, shared.ErrProfileResolution) {
				t.Errorf("expected ErrProfileResolution, got %v", err)
			}
		})

		t.Run("reports server errors", func(t *testing.T) {
			_, err := svc.ResolveProfile(context.Background(), "500")
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("request should not be sent")
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		svc, _ := NewSynapseService(server.URL, "secret", NewLimiter(1))
		if _, err := svc.GetGroup(ctx, "1"); err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})
}

func TestProfile(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"scalar email wins", Profile{Email: "a@example.com", Emails: []string{"b@example.com"}}, "a@example.com"},
		{"first list entry", Profile{Emails: []string{"b@example.com", "c@example.com"}}, "b@example.com"},
		{"skips blank entries", Profile{Emails: []string{"", "  ", "c@example.com"}}, "c@example.com"},
		{"empty list", Profile{Emails: []string{}}, ""},
		{"nil list", Profile{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.PrimaryEmail(); got != tt.want {
				t.Errorf("PrimaryEmail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewLimiter(t *testing.T) {
	t.Run("disables pacing for non-positive rate", func(t *testing.T) {
		if l := NewLimiter(0); l.Limit() != rate.Inf {
			t.Errorf("expected infinite limit, got %v", l.Limit())
		}
	})

	t.Run("uses at least a burst of one", func(t *testing.T) {
		if l := NewLimiter(0.5); l.Burst() != 1 {
			t.Errorf("expected burst 1, got %d", l.Burst())
		}
	})
}
