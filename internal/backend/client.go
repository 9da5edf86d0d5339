// Package backend is the JSON client for the external REST API: auth, the
// question bank and interview lifecycle endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
)

const defaultTimeout = 15 * time.Second

// ErrMissingBaseURL is returned by New when no API address is configured.
var ErrMissingBaseURL = errors.New("backend: base url required")

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// TokenSource returns the bearer token of the signed-in user, or "".
type TokenSource func() string

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	log     zerolog.Logger
}

func New(cfg Config, token TokenSource, log zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		token:   token,
		log:     log.With().Str("component", "backend").Logger(),
	}, nil
}

// APIError is a non-2xx reply (or a success=false envelope) from the API.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: http %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: http %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool { return IsStatus(err, http.StatusNotFound) }

type envelope[T any] struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    T      `json:"data"`
	Meta    *struct {
		Pagination model.Pagination `json:"pagination"`
	} `json:"meta"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Name    string `json:"name"`
	} `json:"error"`
}

func (e *envelope[T]) failure(status int) *APIError {
	apiErr := &APIError{Status: status, Message: e.Message, Code: e.Code}
	if e.Error != nil {
		if apiErr.Message == "" {
			apiErr.Message = e.Error.Message
		}
		if apiErr.Code == "" {
			apiErr.Code = e.Error.Code
		}
		if apiErr.Code == "" {
			apiErr.Code = e.Error.Name
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func doJSON[T any](c *Client, ctx context.Context, method, path string, body any) (*envelope[T], error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("API call")

	var (
		env       envelope[T]
		decodeErr error
	)
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, env.failure(resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("backend: decode %s %s: %w", method, path, decodeErr)
	}
	if env.Success != nil && !*env.Success {
		return nil, env.failure(resp.StatusCode)
	}
	return &env, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.AuthSession, error) {
	env, err := doJSON[model.AuthSession](c, ctx, http.MethodPost, "/api/auth/login", req)
	if err != nil {
		return nil, err
	}
	if env.Data.Token == "" {
		return nil, &APIError{Status: http.StatusBadGateway, Message: "login reply carried no token"}
	}
	return &env.Data, nil
}

// Me returns the profile behind the current token.
func (c *Client) Me(ctx context.Context) (*model.UserProfile, error) {
	env, err := doJSON[model.UserProfile](c, ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// CreateInterview registers a new interview and returns its id.
func (c *Client) CreateInterview(ctx context.Context, req model.StartInterviewRequest) (*model.CreatedInterview, error) {
	env, err := doJSON[model.CreatedInterview](c, ctx, http.MethodPost, "/api/interviews", req)
	if err != nil {
		return nil, err
	}
	if env.Data.InterviewID == "" {
		return nil, &APIError{Status: http.StatusBadGateway, Message: "create reply carried no interview id"}
	}
	return &env.Data, nil
}

// ActiveInterview asks whether the user has a session in progress.
func (c *Client) ActiveInterview(ctx context.Context) (*model.ActiveInterview, error) {
	env, err := doJSON[model.ActiveInterview](c, ctx, http.MethodGet, "/api/interviews/active", nil)
	if err != nil {
		return nil, err
	}
	active := env.Data
	if active.Interview != nil {
		active.Interview.Source = model.RecoverySourceServer
	}
	if active.Interview == nil || active.Interview.InterviewID == "" {
		active.HasActiveInterview = false
		active.Interview = nil
	}
	return &active, nil
}

// ResumeInterview fetches the authoritative state of interviewID.
func (c *Client) ResumeInterview(ctx context.Context, interviewID string) (*model.ResumedInterview, error) {
	path := "/api/interviews/" + url.PathEscape(interviewID) + "/resume"
	env, err := doJSON[model.ResumedInterview](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	reply := env.Data
	if reply.InterviewID == "" {
		reply.InterviewID = interviewID
	}
	return &reply, nil
}

// EndInterview ends interviewID on the server.
func (c *Client) EndInterview(ctx context.Context, interviewID string) error {
	path := "/api/interviews/" + url.PathEscape(interviewID) + "/end"
	_, err := doJSON[json.RawMessage](c, ctx, http.MethodPost, path, struct{}{})
	return err
}

// ListQuestions pages through the question bank.
func (c *Client) ListQuestions(ctx context.Context, params model.ListParams) ([]model.BankQuestion, model.Pagination, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.Technology != "" {
		q.Set("technology", params.Technology)
	}
	path := "/api/questions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	env, err := doJSON[[]model.BankQuestion](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	var page model.Pagination
	if env.Meta != nil {
		page = env.Meta.Pagination
	}
	if env.Data == nil {
		env.Data = []model.BankQuestion{}
	}
	return env.Data, page, nil
}

func (c *Client) Technologies(ctx context.Context) ([]model.Technology, error) {
	env, err := doJSON[[]model.Technology](c, ctx, http.MethodGet, "/api/technologies", nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	env, err := doJSON[[]model.Category](c, ctx, http.MethodGet, "/api/categories", nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// BulkUpload submits many questions in one request.
func (c *Client) BulkUpload(ctx context.Context, req model.BulkUploadRequest) (*model.BulkUploadResult, error) {
	env, err := doJSON[model.BulkUploadResult](c, ctx, http.MethodPost, "/api/questions/bulk-upload", req)
	if err != nil {
		return nil, err
	}
	return &env.Data, nil
}
