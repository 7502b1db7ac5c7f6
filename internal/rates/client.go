// Package rates is a client for the Central Bank of Russia exchange rate feeds:
// the daily JSON mirror (current and archived rates) and the cbr.ru XML
// scripts (currency directory and per-currency history).
package rates

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"
)

var (
	// ErrUnavailable means the source could not be reached or answered with a non-2xx status.
	ErrUnavailable = errors.New("rate source unavailable")
	// ErrMalformed means the source answered but the payload could not be decoded.
	ErrMalformed = errors.New("rate source payload malformed")
	// ErrUnknownCurrency means the currency is absent from the CBR directory.
	ErrUnknownCurrency = errors.New("currency not in directory")
)

const (
	DefaultDailyURL = "https://www.cbr-xml-daily.ru"
	DefaultCBRURL   = "https://www.cbr.ru"
	DefaultTimeout  = 20 * time.Second

	maxBody = 4 << 20
)

// Config configures a Client. Zero values fall back to the public endpoints.
type Config struct {
	DailyURL string
	CBRURL   string
	Timeout  time.Duration
}

// Client fetches rates. It is safe for concurrent use and is meant to be
// created once at startup and closed on shutdown.
type Client struct {
	http     *http.Client
	dailyURL string
	cbrURL   string
	timeout  time.Duration

	mu  sync.Mutex
	ids map[string]string // ISO char code -> CBR internal id
}

func New(cfg Config) *Client {
	if cfg.DailyURL == "" {
		cfg.DailyURL = DefaultDailyURL
	}
	if cfg.CBRURL == "" {
		cfg.CBRURL = DefaultCBRURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		dailyURL: strings.TrimRight(cfg.DailyURL, "/"),
		cbrURL:   strings.TrimRight(cfg.CBRURL, "/"),
		timeout:  cfg.Timeout,
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// errNotFound is returned by get for a 404 so callers can tell "no data for that day".
var errNotFound = errors.New("not found")

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %w: %s", ErrUnavailable, errNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	return body, nil
}

// dailyPayload is the shape of daily_json.js. Quote fields stay raw so one
// bad entry degrades to "no data" instead of failing the whole snapshot.
type dailyPayload struct {
	Date   string `json:"Date"`
	Valute map[string]struct {
		Nominal  json.RawMessage `json:"Nominal"`
		Value    json.RawMessage `json:"Value"`
		Previous json.RawMessage `json:"Previous"`
	} `json:"Valute"`
}

// FetchSnapshot returns the latest published rates for codes.
// Codes the source does not list are reported as NoData.
func (c *Client) FetchSnapshot(ctx context.Context, codes []string) (Snapshot, error) {
	body, err := c.get(ctx, c.dailyURL+"/daily_json.js")
	if err != nil {
		return Snapshot{}, err
	}
	return decodeDaily(body, codes)
}

// FetchSnapshotOn returns the rates published for a given day. Days without a
// publication (weekends, holidays) yield an all-NoData snapshot and no error.
func (c *Client) FetchSnapshotOn(ctx context.Context, day time.Time, codes []string) (Snapshot, error) {
	u := fmt.Sprintf("%s/archive/%04d/%02d/%02d/daily_json.js", c.dailyURL, day.Year(), int(day.Month()), day.Day())
	body, err := c.get(ctx, u)
	if errors.Is(err, errNotFound) {
		return EmptySnapshot(day, codes), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return decodeDaily(body, codes)
}

func decodeDaily(body []byte, codes []string) (Snapshot, error) {
	var p dailyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if p.Valute == nil {
		return Snapshot{}, fmt.Errorf("%w: no Valute section", ErrMalformed)
	}
	date, _ := time.Parse(time.RFC3339, p.Date)

	snap := EmptySnapshot(date, codes)
	for _, code := range codes {
		v, ok := p.Valute[code]
		if !ok {
			continue
		}
		q := Quote{
			Value:    rawDecimal(v.Value),
			Nominal:  1,
			Previous: rawDecimal(v.Previous),
		}
		if n, err := strconv.Atoi(strings.TrimSpace(string(v.Nominal))); err == nil && n > 0 {
			q.Nominal = n
		}
		snap.Rates[code] = q
	}
	return snap, nil
}

// rawDecimal parses a JSON number (or numeric string); anything else is no data.
func rawDecimal(raw json.RawMessage) decimal.NullDecimal {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}

type directoryXML struct {
	Items []struct {
		ID       string `xml:"ID,attr"`
		CharCode string `xml:"ISO_Char_Code"`
	} `xml:"Item"`
}

// CurrencyID resolves an ISO code to the CBR internal id used by the history
// endpoint. The directory is loaded once per Client.
func (c *Client) CurrencyID(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	ids := c.ids
	c.mu.Unlock()

	if ids == nil {
		body, err := c.get(ctx, c.cbrURL+"/scripts/XML_valFull.asp")
		if err != nil {
			return "", err
		}
		var dir directoryXML
		if err := decodeXML(body, &dir); err != nil {
			return "", err
		}
		ids = make(map[string]string, len(dir.Items))
		for _, it := range dir.Items {
			cc := strings.ToUpper(strings.TrimSpace(it.CharCode))
			if cc != "" {
				ids[cc] = strings.TrimSpace(it.ID)
			}
		}
		c.mu.Lock()
		c.ids = ids
		c.mu.Unlock()
	}

	id, ok := ids[strings.ToUpper(code)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return id, nil
}

type dynamicXML struct {
	Records []struct {
		Date    string `xml:"Date,attr"`
		Nominal string `xml:"Nominal"`
		Value   string `xml:"Value"`
	} `xml:"Record"`
}

// History returns per-unit values of code between from and to inclusive.
// Records that cannot be parsed are skipped.
func (c *Client) History(ctx context.Context, code string, from, to time.Time) ([]Point, error) {
	id, err := c.CurrencyID(ctx, code)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("date_req1", from.Format("02/01/2006"))
	q.Set("date_req2", to.Format("02/01/2006"))
	q.Set("VAL_NM_RQ", id)

	body, err := c.get(ctx, c.cbrURL+"/scripts/XML_dynamic.asp?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var dyn dynamicXML
	if err := decodeXML(body, &dyn); err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(dyn.Records))
	for _, r := range dyn.Records {
		day, err := time.Parse("02.01.2006", r.Date)
		if err != nil {
			continue
		}
		nominal, err := strconv.Atoi(strings.TrimSpace(r.Nominal))
		if err != nil || nominal <= 0 {
			continue
		}
		v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(r.Value), ",", "."))
		if err != nil {
			continue
		}
		out = append(out, Point{Date: day, Value: v.Div(decimal.NewFromInt(int64(nominal)))})
	}
	return out, nil
}

// decodeXML handles the windows-1251 documents served by cbr.ru.
func decodeXML(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
