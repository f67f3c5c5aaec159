package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/gofiber/fiber/v2"
)

const defaultFetchTimeout = 10 * time.Second

// HTTPFetcher reads conversation history from the REST API.
type HTTPFetcher struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher for the API at baseURL, authenticating with token.
func NewHTTPFetcher(baseURL, token string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: defaultFetchTimeout,
	}
}

type messageList struct {
	Messages []*domain.Message `json:"messages"`
}

type apiError struct {
	Message string `json:"message"`
}

// FetchConversation implements Fetcher. The deadline of ctx bounds the
// request when it is shorter than the fetcher timeout.
func (f *HTTPFetcher) FetchConversation(ctx context.Context, key Key, q Query) ([]*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var path string
	switch key.Kind {
	case KindChannel:
		path = "/api/v1/channels/" + url.PathEscape(key.ID) + "/messages"
	case KindDirect:
		path = "/api/v1/users/" + url.PathEscape(key.ID) + "/messages"
	default:
		return nil, fmt.Errorf("unknown conversation kind %q", key.Kind)
	}

	params := url.Values{}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	if q.Since != nil {
		params.Set("since", q.Since.UTC().Format(time.RFC3339Nano))
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	agent := fiber.Get(f.baseURL + path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+f.token)
	agent.QueryString(params.Encode())
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, errs[0])
	}
	if code != fiber.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		return nil, statusError(code, apiErr.Message)
	}

	var list messageList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: invalid history response: %v", domain.ErrStore, err)
	}
	return list.Messages, nil
}

func statusError(code int, message string) error {
	if message == "" {
		message = fmt.Sprintf("history request failed with status %d", code)
	}
	switch code {
	case fiber.StatusUnauthorized:
		return domain.NewError(domain.ErrAuthentication, message)
	case fiber.StatusForbidden:
		return domain.NewError(domain.ErrAuthorization, message)
	case fiber.StatusNotFound:
		return domain.NewError(domain.ErrNotFound, message)
	case fiber.StatusBadRequest:
		return domain.NewError(domain.ErrValidation, message)
	default:
		return domain.NewError(domain.ErrStore, message)
	}
}
