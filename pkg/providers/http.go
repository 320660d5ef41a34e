package providers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// AuthenticationProvider supplies per-request headers (tokens, API keys) for
// outbound calls. The engine treats it as opaque.
type AuthenticationProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// HTTP talks to a JSON REST endpoint. The provider ref is the collection
// URL; objects are identified by their `id` field.
//
// List:   GET    {ref}?_page=N  -> {"results": [...], "has_more": bool}
// Get:    GET    {ref}/{id}
// Create: POST   {ref}          -> {"id": "..."} (or echoes the object)
// Update: PUT    {ref}/{id}
// Delete: DELETE {ref}/{id}     (404 counts as success)
type HTTP struct {
	client *http.Client
	auth   AuthenticationProvider
}

func NewHTTP(auth AuthenticationProvider) *HTTP {
	return &HTTP{
		client: &http.Client{Timeout: 30 * time.Second},
		auth:   auth,
	}
}

type listResponse struct {
	Results []map[string]interface{} `json:"results"`
	HasMore bool                     `json:"has_more"`
}

func (h *HTTP) List(ctx context.Context, ref string, page int) (*Page, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid provider ref %q", ref)
	}
	q := u.Query()
	q.Set("_page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	body, status, err := h.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("list %s returned status %d", ref, status)
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode list response")
	}

	result := &Page{HasMore: resp.HasMore}
	for _, payload := range resp.Results {
		id, _ := payload["id"].(string)
		if id == "" {
			if n, ok := payload["id"].(float64); ok {
				id = strconv.FormatInt(int64(n), 10)
			}
		}
		result.Objects = append(result.Objects, Object{OriginID: id, Payload: payload})
	}
	return result, nil
}

func (h *HTTP) Get(ctx context.Context, ref, id string) (map[string]interface{}, error) {
	body, status, err := h.do(ctx, http.MethodGet, ref+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("get %s/%s returned status %d", ref, id, status)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode object")
	}
	return payload, nil
}

func (h *HTTP) Write(ctx context.Context, ref string, object map[string]interface{}, existingID *string) (string, error) {
	data, err := json.Marshal(object)
	if err != nil {
		return "", errors.WithStack(err)
	}

	method := http.MethodPost
	target := ref
	if existingID != nil {
		method = http.MethodPut
		target = ref + "/" + url.PathEscape(*existingID)
	}

	body, status, err := h.do(ctx, method, target, data)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", errors.Errorf("write %s returned status %d", target, status)
	}

	if existingID != nil {
		return *existingID, nil
	}

	var created map[string]interface{}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrap(err, "failed to decode write response")
	}
	switch id := created["id"].(type) {
	case string:
		return id, nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	}
	return "", errors.New("write response contains no id")
}

func (h *HTTP) Delete(ctx context.Context, ref, id string) error {
	_, status, err := h.do(ctx, http.MethodDelete, ref+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	// Already absent counts as success; delete is idempotent.
	if status == http.StatusNotFound || (status >= 200 && status <= 299) {
		return nil
	}
	return errors.Errorf("delete %s/%s returned status %d", ref, id, status)
}

func (h *HTTP) do(ctx context.Context, method, target string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if h.auth != nil {
		headers, err := h.auth.Headers(ctx)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to get auth headers")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return data, resp.StatusCode, nil
}
