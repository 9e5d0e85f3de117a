package homework

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Result is one successful poll: zero or more records (newest first, as
// returned by the endpoint) and, when the response carried one, the next cursor.
type Result struct {
	Records   []Record
	Cursor    int64
	HasCursor bool
}

// Config configures a Fetcher.
type Config struct {
	Endpoint string
	Token    string
	// Timeout bounds one request (connect + headers + body). Default 30s.
	Timeout time.Duration
}

// Fetcher performs one status request per call.
type Fetcher struct {
	endpoint *url.URL
	token    string
	client   *http.Client
	now      func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithClock sets the time source used when the cursor is negative.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func NewFetcher(cfg Config, opts ...Option) (*Fetcher, error) {
	ep := strings.TrimSpace(cfg.Endpoint)
	if ep == "" {
		return nil, errors.New("homework: endpoint required")
	}
	u, err := url.Parse(ep)
	if err != nil {
		return nil, fmt.Errorf("homework: endpoint: %w", err)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("homework: token required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		endpoint: u,
		token:    strings.TrimSpace(cfg.Token),
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Fetch requests statuses changed since cursor. A negative cursor is replaced
// by the current time. On failure the Result is empty and the error is a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, cursor int64) (Result, error) {
	if cursor < 0 {
		cursor = f.now().Unix()
	}

	u := *f.endpoint
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(cursor, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return Result{}, &FetchError{Kind: ErrConnection, Err: err}
	}
	req.Header.Set("Authorization", "OAuth "+f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Result{}, &FetchError{Kind: ErrHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Result{}, classifyTransport(err)
	}
	if len(body) > maxBodyBytes {
		return Result{}, &FetchError{Kind: ErrDecode, Err: fmt.Errorf("body exceeds %d bytes", maxBodyBytes)}
	}

	res, err := decodeBody(body)
	if err != nil {
		return Result{}, &FetchError{Kind: ErrDecode, Err: err}
	}
	return res, nil
}

func classifyTransport(err error) *FetchError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &FetchError{Kind: ErrTimeout, Err: err}
	}
	return &FetchError{Kind: ErrConnection, Err: err}
}

type wireBody struct {
	Homeworks   json.RawMessage `json:"homeworks"`
	CurrentDate json.RawMessage `json:"current_date"`
}

func decodeBody(body []byte) (Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{}, errors.New("body is not a json object")
	}
	var wb wireBody
	if err := json.Unmarshal(trimmed, &wb); err != nil {
		return Result{}, err
	}

	var res Result
	if hw := bytes.TrimSpace(wb.Homeworks); len(hw) > 0 && !isNull(hw) {
		var items []json.RawMessage
		if err := json.Unmarshal(hw, &items); err != nil {
			return Result{}, fmt.Errorf("homeworks: %w", err)
		}
		res.Records = make([]Record, 0, len(items))
		for _, it := range items {
			res.Records = append(res.Records, decodeRecord(it))
		}
	}
	res.Cursor, res.HasCursor = decodeCursor(wb.CurrentDate)
	return res, nil
}

// decodeRecord never fails: anything it cannot read becomes an invalid or
// unknown-status Record.
func decodeRecord(raw json.RawMessage) Record {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Record{}
	}

	var rec Record
	if v, ok := fields["homework_name"]; ok {
		var name string
		if err := json.Unmarshal(v, &name); err == nil && !isNull(v) {
			rec.Name = name
			rec.Valid = true
		}
	}
	if v, ok := fields["status"]; ok {
		var st string
		if err := json.Unmarshal(v, &st); err == nil {
			rec.RawStatus = st
		}
	}
	rec.Status = ParseStatus(rec.RawStatus)
	return rec
}

func decodeCursor(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	fl, err := n.Float64()
	if err != nil || fl != math.Trunc(fl) || math.Abs(fl) > math.MaxInt64 {
		return 0, false
	}
	return int64(fl), true
}

func isNull(raw []byte) bool { return string(bytes.TrimSpace(raw)) == "null" }
