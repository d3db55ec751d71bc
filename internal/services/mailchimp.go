// MailChimp Marketing API v3 implementation of [AudienceService]
//
// Response types based on https://mailchimp.com/developer/marketing/api/
package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/mlsync/internal/shared"
	"golang.org/x/time/rate"
)

// mailChimpMaxBatch is the member/operation cap of a single batch call.
const mailChimpMaxBatch = 500

type mergeFields struct {
	FirstName string `json:"FNAME"`
	LastName  string `json:"LNAME"`
}

// MailChimpMember is a list member as sent to and returned from the API.
type MailChimpMember struct {
	EmailAddress string       `json:"email_address"`
	EmailType    string       `json:"email_type,omitempty"`
	Status       string       `json:"status,omitempty"`
	MergeFields  *mergeFields `json:"merge_fields,omitempty"`
}

// MailChimpPaginatedMembers is the GET /lists/{id}/members response.
type MailChimpPaginatedMembers struct {
	Members    []MailChimpMember `json:"members"`
	TotalItems int               `json:"total_items"`
}

type batchSubscribeRequest struct {
	Members        []MailChimpMember `json:"members"`
	UpdateExisting bool              `json:"update_existing"`
}

type mailChimpMemberError struct {
	EmailAddress string `json:"email_address"`
	Error        string `json:"error"`
	ErrorCode    string `json:"error_code"`
}

// MailChimpBatchResponse is the POST /lists/{id} response.
type MailChimpBatchResponse struct {
	NewMembers     []MailChimpMember      `json:"new_members"`
	UpdatedMembers []MailChimpMember      `json:"updated_members"`
	Errors         []mailChimpMemberError `json:"errors"`
	TotalCreated   int                    `json:"total_created"`
	TotalUpdated   int                    `json:"total_updated"`
	ErrorCount     int                    `json:"error_count"`
}

type batchOperation struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	OperationID string `json:"operation_id,omitempty"`
}

type batchOperationsRequest struct {
	Operations []batchOperation `json:"operations"`
}

// MailChimpBatchOperation is the POST /batches response.
type MailChimpBatchOperation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type mailChimpError struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// MailChimpService implements [AudienceService] for the MailChimp API.
// Authenticates with HTTP basic auth using the API key.
type MailChimpService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewMailChimpService creates a MailChimp client.
//
// When baseURL is empty the data center is taken from the API key suffix (key-us6 → us6).
func NewMailChimpService(apiKey, baseURL string, limiter *rate.Limiter) (*MailChimpService, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: mailchimp api key", shared.ErrMissingCredentials)
	}

	if baseURL == "" {
		dc, err := DataCenter(apiKey)
		if err != nil {
			return nil, err
		}
		baseURL = fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc)
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}

	return &MailChimpService{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		limiter:    limiter,
	}, nil
}

// DataCenter extracts the data center from an API key.
func DataCenter(apiKey string) (string, error) {
	idx := strings.LastIndex(apiKey, "-")
	if idx < 0 || idx == len(apiKey)-1 {
		return "", fmt.Errorf("%w: mailchimp api key has no data center suffix", shared.ErrInvalidConfig)
	}
	return apiKey[idx+1:], nil
}

// SubscriberHash is the member id MailChimp derives from an address.
func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(shared.NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

func (m *MailChimpService) Name() string {
	return "MailChimp"
}

// doRequest performs an authenticated HTTP request to the MailChimp API.
func (m *MailChimpService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth("mlsync", m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp mailChimpError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &errResp)

		base := shared.ErrAPIRequest
		if resp.StatusCode == http.StatusNotFound {
			base = shared.ErrNotFound
		}
		if errResp.Detail != "" {
			return fmt.Errorf("%w: mailchimp API error (status %d): %s", base, resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("%w: mailchimp API error: status %d", base, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ListMembers retrieves one page of list members with the given status.
func (m *MailChimpService) ListMembers(ctx context.Context, listID string, status MemberStatus, offset, limit int) (*AudiencePage, error) {
	if listID == "" {
		return nil, fmt.Errorf("%w: list id", shared.ErrMissingArgument)
	}
	if limit <= 0 {
		limit = 100
	}

	q := url.Values{}
	q.Set("status", string(status))
	q.Set("count", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	q.Set("fields", "members.email_address,members.status,total_items")
	endpoint := fmt.Sprintf("/lists/%s/members?%s", url.PathEscape(listID), q.Encode())

	var response MailChimpPaginatedMembers
	if err := m.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	page := &AudiencePage{Total: response.TotalItems, Members: make([]AudienceMember, 0, len(response.Members))}
	for _, mm := range response.Members {
		page.Members = append(page.Members, AudienceMember{Email: mm.EmailAddress, Status: MemberStatus(mm.Status)})
	}
	return page, nil
}

// BatchSubscribe adds or updates members on a list, chunked to the API batch cap.
//
// Per-member rejections are reported in [BatchResult.Errors] and do not fail the call.
func (m *MailChimpService) BatchSubscribe(ctx context.Context, listID string, items []SubscribeItem, opts SubscribeOptions) (*BatchResult, error) {
	result := &BatchResult{}
	if len(items) == 0 {
		return result, nil
	}

	status := string(StatusSubscribed)
	if opts.DoubleOptIn {
		status = string(StatusPending)
	}

	for start := 0; start < len(items); start += mailChimpMaxBatch {
		end := min(start+mailChimpMaxBatch, len(items))

		req := batchSubscribeRequest{UpdateExisting: opts.UpdateExisting, Members: make([]MailChimpMember, 0, end-start)}
		for _, item := range items[start:end] {
			emailType := item.EmailType
			if emailType == "" {
				emailType = "html"
			}
			req.Members = append(req.Members, MailChimpMember{
				EmailAddress: item.Email,
				EmailType:    emailType,
				Status:       status,
				MergeFields:  &mergeFields{FirstName: item.FirstName, LastName: item.LastName},
			})
		}

		if err := m.postMembers(ctx, listID, req, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// BatchUnsubscribe removes members from a list.
//
// With DeleteMember the members are permanently deleted through the batch operations endpoint,
// otherwise their status is set to unsubscribed. The v3 API sends no goodbye or notification
// emails for API-driven removals, so SendGoodbye and SendNotify have no effect.
func (m *MailChimpService) BatchUnsubscribe(ctx context.Context, listID string, emails []string, opts UnsubscribeOptions) (*BatchResult, error) {
	result := &BatchResult{}
	if len(emails) == 0 {
		return result, nil
	}

	if !opts.DeleteMember {
		for start := 0; start < len(emails); start += mailChimpMaxBatch {
			end := min(start+mailChimpMaxBatch, len(emails))

			req := batchSubscribeRequest{UpdateExisting: true, Members: make([]MailChimpMember, 0, end-start)}
			for _, email := range emails[start:end] {
				req.Members = append(req.Members, MailChimpMember{EmailAddress: email, Status: string(StatusUnsubscribed)})
			}
			if err := m.postMembers(ctx, listID, req, result); err != nil {
				return result, err
			}
		}
		result.Removed, result.Updated = result.Updated, 0
		return result, nil
	}

	var ids []string
	for start := 0; start < len(emails); start += mailChimpMaxBatch {
		end := min(start+mailChimpMaxBatch, len(emails))

		req := batchOperationsRequest{Operations: make([]batchOperation, 0, end-start)}
		for _, email := range emails[start:end] {
			req.Operations = append(req.Operations, batchOperation{
				Method:      http.MethodDelete,
				Path:        fmt.Sprintf("/lists/%s/members/%s", listID, SubscriberHash(email)),
				OperationID: email,
			})
		}

		var op MailChimpBatchOperation
		if err := m.doRequest(ctx, http.MethodPost, "/batches", req, &op); err != nil {
			result.BatchID = strings.Join(ids, ",")
			return result, err
		}
		ids = append(ids, op.ID)
		result.Removed += end - start
	}
	result.BatchID = strings.Join(ids, ",")
	return result, nil
}

func (m *MailChimpService) postMembers(ctx context.Context, listID string, req batchSubscribeRequest, result *BatchResult) error {
	var response MailChimpBatchResponse
	if err := m.doRequest(ctx, http.MethodPost, "/lists/"+url.PathEscape(listID), req, &response); err != nil {
		return err
	}

	result.Added += response.TotalCreated
	result.Updated += response.TotalUpdated
	for _, e := range response.Errors {
		result.Errors = append(result.Errors, BatchError{Email: e.EmailAddress, Code: e.ErrorCode, Message: e.Error})
	}
	return nil
}
