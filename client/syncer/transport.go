package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core/progress"
)

// Transport sends one record to the server.
type Transport interface {
	Upsert(ctx context.Context, rec progress.Record) error
}

// HTTPError is a non-2xx answer of the progress API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// HTTPTransport talks to the progress API with a bearer token.
type HTTPTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(baseURL, token string, httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPTransport{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

func (t *HTTPTransport) Upsert(ctx context.Context, rec progress.Record) error {
	return t.doJSON(ctx, http.MethodPost, "/api/progress/"+url.PathEscape(rec.OwnerID), rec, nil)
}

// List fetches the records of owner, to seed an Engine's view.
func (t *HTTPTransport) List(ctx context.Context, owner string) ([]progress.Record, error) {
	var out struct {
		Data []progress.Record `json:"data"`
	}
	err := t.doJSON(ctx, http.MethodGet, "/api/progress/"+url.PathEscape(owner), nil, &out)
	return out.Data, err
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, &body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errPayload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if err = json.Unmarshal(data, &errPayload); err == nil && errPayload.Error != "" {
			msg = errPayload.Error
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil && len(data) > 0 {
		return errors.Wrap(json.Unmarshal(data, out), "decoding response body")
	}
	return nil
}
