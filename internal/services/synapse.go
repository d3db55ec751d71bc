// Synapse REST API implementation of [RosterService]
//
// Response types based on https://rest-docs.synapse.org/rest/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/mlsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const synapseBaseURL = "https://repo-prod.prod.sagebase.org/repo/v1"

// SynapseTeam is the /team/{id} response.
type SynapseTeam struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type synapseMember struct {
	OwnerID      string `json:"ownerId"`
	UserName     string `json:"userName"`
	IsIndividual bool   `json:"isIndividual"`
}

// SynapseTeamMember is one entry of the /teamMembers/{id} response.
type SynapseTeamMember struct {
	TeamID  string        `json:"teamId"`
	Member  synapseMember `json:"member"`
	IsAdmin bool          `json:"isAdmin"`
}

// SynapsePaginatedMembers is the /teamMembers/{id} response.
type SynapsePaginatedMembers struct {
	TotalNumberOfResults int                 `json:"totalNumberOfResults"`
	Results              []SynapseTeamMember `json:"results"`
}

// SynapseUserProfile is the /userProfile/{id} response.
type SynapseUserProfile struct {
	OwnerID   string   `json:"ownerId"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	UserName  string   `json:"userName"`
	Email     string   `json:"email,omitempty"`
	Emails    []string `json:"emails,omitempty"`
}

type synapseError struct {
	Reason string `json:"reason"`
}

// SynapseService implements [RosterService] for the Synapse repository API.
// Authenticates with a personal access token carried through an [oauth2] static token source.
type SynapseService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSynapseService creates a Synapse client. An empty baseURL selects the production endpoint
// and a nil limiter leaves requests unpaced.
func NewSynapseService(baseURL, accessToken string, limiter *rate.Limiter) (*SynapseService, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: synapse access token", shared.ErrMissingCredentials)
	}
	if baseURL == "" {
		baseURL = synapseBaseURL
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &SynapseService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport}},
		limiter:    limiter,
	}, nil
}

func (s *SynapseService) Name() string {
	return "Synapse"
}

// doRequest performs an authenticated GET against the Synapse API and decodes the JSON body into result.
func (s *SynapseService) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp synapseError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(body, &errResp)

		base := shared.ErrAPIRequest
		if resp.StatusCode == http.StatusNotFound {
			base = shared.ErrNotFound
		}
		if errResp.Reason != "" {
			return fmt.Errorf("%w: synapse API error (status %d): %s", base, resp.StatusCode, errResp.Reason)
		}
		return fmt.Errorf("%w: synapse API error: status %d", base, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// GetGroup resolves a team by id.
func (s *SynapseService) GetGroup(ctx context.Context, groupID string) (*GroupInfo, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id", shared.ErrMissingArgument)
	}

	var team SynapseTeam
	if err := s.doRequest(ctx, "/team/"+url.PathEscape(groupID), &team); err != nil {
		return nil, err
	}
	return &GroupInfo{ID: team.ID, Name: team.Name}, nil
}

// GetGroupMembers retrieves one page of team members.
func (s *SynapseService) GetGroupMembers(ctx context.Context, groupID string, offset, limit int) (*MemberPage, error) {
	if limit <= 0 {
		limit = 100
	}

	endpoint := fmt.Sprintf("/teamMembers/%s?offset=%d&limit=%d", url.PathEscape(groupID), offset, limit)

	var response SynapsePaginatedMembers
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	page := &MemberPage{Total: response.TotalNumberOfResults, Members: make([]MemberRef, 0, len(response.Results))}
	for _, r := range response.Results {
		page.Members = append(page.Members, MemberRef{
			OwnerID:      r.Member.OwnerID,
			UserName:     r.Member.UserName,
			IsIndividual: r.Member.IsIndividual,
		})
	}
	return page, nil
}

// ResolveProfile retrieves a user profile by owner id.
func (s *SynapseService) ResolveProfile(ctx context.Context, memberID string) (*Profile, error) {
	var profile SynapseUserProfile
	if err := s.doRequest(ctx, "/userProfile/"+url.PathEscape(memberID), &profile); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: profile %s: %v", shared.ErrProfileResolution, memberID, err)
		}
		return nil, err
	}

	return &Profile{
		OwnerID:   profile.OwnerID,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Email:     profile.Email,
		Emails:    profile.Emails,
	}, nil
}

// NewLimiter builds a request limiter. Non-positive rates disable pacing.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
