package sheets

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

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
)

// Client performs range-addressed operations against the spreadsheet values API.
type Client struct {
	baseURL    string
	tokens     *TokenProvider
	httpClient *http.Client
}

var _ progress.TabularStore = (*Client)(nil)

func NewClient(baseURL string, tokens *TokenProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

type valueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values"`
}

func (c *Client) ReadRange(ctx context.Context, storeID, rng string) ([][]string, error) {
	var vr valueRange
	if err := c.do(ctx, http.MethodGet, c.valuesURL(storeID, rng, "", nil), nil, &vr); err != nil {
		return nil, errors.Wrapf(err, "reading %s", rng)
	}

	rows := make([][]string, 0, len(vr.Values))
	for _, vals := range vr.Values {
		row := make([]string, 0, len(vals))
		for _, v := range vals {
			row = append(row, cellString(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) WriteRange(ctx context.Context, storeID, rng string, rows [][]string) error {
	q := url.Values{"valueInputOption": {"RAW"}}
	body := valueRange{Range: rng, MajorDimension: "ROWS", Values: toValues(rows)}
	err := c.do(ctx, http.MethodPut, c.valuesURL(storeID, rng, "", q), body, nil)
	return errors.Wrapf(err, "writing %s", rng)
}

func (c *Client) AppendRows(ctx context.Context, storeID, rng string, rows [][]string) error {
	q := url.Values{"valueInputOption": {"RAW"}, "insertDataOption": {"INSERT_ROWS"}}
	body := valueRange{MajorDimension: "ROWS", Values: toValues(rows)}
	err := c.do(ctx, http.MethodPost, c.valuesURL(storeID, rng, ":append", q), body, nil)
	return errors.Wrapf(err, "appending to %s", rng)
}

func (c *Client) valuesURL(storeID, rng, verb string, q url.Values) string {
	u := fmt.Sprintf("%s/%s/values/%s%s", c.baseURL, url.PathEscape(storeID), url.PathEscape(rng), verb)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, in, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "getting access token")
	}

	var body bytes.Buffer
	if in != nil {
		if err = json.NewEncoder(&body).Encode(in); err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.StoreError{Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return &core.StoreError{Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate() // next call exchanges a new assertion
		}
		return &core.StoreError{Status: resp.StatusCode, Message: upstreamMessage(data)}
	}

	if out != nil && len(data) > 0 {
		if err = json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decoding response body")
		}
	}
	return nil
}

// upstreamMessage extracts the message of a Google-style error body: {"error": {"message": ...}} or
// {"error": "...", "error_description": "..."}.
func upstreamMessage(body []byte) string {
	var apiErr struct {
		Error json.RawMessage `json:"error"`
		Desc  string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Error) > 0 {
		var detailed struct {
			Message string `json:"message"`
		}
		if err = json.Unmarshal(apiErr.Error, &detailed); err == nil && detailed.Message != "" {
			return detailed.Message
		}
		var code string
		if err = json.Unmarshal(apiErr.Error, &code); err == nil {
			if apiErr.Desc != "" {
				return code + ": " + apiErr.Desc
			}
			return code
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(val)
	}
}

func toValues(rows [][]string) [][]interface{} {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		vals := make([]interface{}, 0, len(row))
		for _, cell := range row {
			vals = append(vals, cell)
		}
		values = append(values, vals)
	}
	return values
}
