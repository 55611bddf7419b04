package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"flight-radar/internal/models"

	"github.com/go-resty/resty/v2"
)

// tokenExpiryMargin is subtracted from the advertised token lifetime.
const tokenExpiryMargin = 60 * time.Second

// tokenSource owns the OpenSky OAuth token and refreshes it lazily with the
// client-credentials grant.
type tokenSource struct {
	http         *resty.Client
	authURL      string
	clientID     string
	clientSecret string
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a cached token, fetching a new one once the cached token is
// within the expiry margin. Without credentials it returns "" and no error.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	if ts.clientID == "" {
		return "", nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	if ts.token != "" && now.Before(ts.expiresAt.Add(-tokenExpiryMargin)) {
		return ts.token, nil
	}

	var body tokenResponse
	resp, err := ts.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     ts.clientID,
			"client_secret": ts.clientSecret,
		}).
		SetResult(&body).
		Post(ts.authURL)
	if err != nil {
		return "", fmt.Errorf("opensky token request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("opensky token request: status %d", resp.StatusCode())
	}
	if body.AccessToken == "" || body.ExpiresIn <= 0 {
		return "", errors.New("opensky token response missing access_token or expires_in")
	}

	ts.token = body.AccessToken
	ts.expiresAt = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	return ts.token, nil
}

type OpenSkyConfig struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// OpenSkyClient serves live states and completed-flight history.
type OpenSkyClient struct {
	http   *resty.Client
	tokens *tokenSource
}

func NewOpenSkyClient(cfg OpenSkyConfig) *OpenSkyClient {
	return &OpenSkyClient{
		http: newClient("opensky", strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Timeout),
		tokens: &tokenSource{
			http:         newClient("opensky_auth", "", cfg.Timeout),
			authURL:      cfg.AuthURL,
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			now:          time.Now,
		},
	}
}

func (c *OpenSkyClient) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req := c.http.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if token != "" {
		req.SetAuthToken(token)
	}
	return req, nil
}

type statesResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

// State vector indices in /states/all.
const (
	stateICAO24   = 0
	stateCallsign = 1
	stateLon      = 5
	stateLat      = 6
	stateBaroAlt  = 7
	stateVelocity = 9
)

// GetCurrentStates returns every state inside box. States with a blank
// callsign are dropped and the rest are trimmed.
func (c *OpenSkyClient) GetCurrentStates(ctx context.Context, box models.BoundingBox) ([]models.Observation, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var body statesResponse
	resp, err := req.
		SetQueryParams(map[string]string{
			"lamin": formatCoord(box.LatMin),
			"lomin": formatCoord(box.LonMin),
			"lamax": formatCoord(box.LatMax),
			"lomax": formatCoord(box.LonMax),
		}).
		SetResult(&body).
		Get("/states/all")
	if err != nil {
		return nil, fmt.Errorf("opensky states: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("opensky states: status %d", resp.StatusCode())
	}

	out := make([]models.Observation, 0, len(body.States))
	for _, state := range body.States {
		callsign := strings.TrimSpace(stringAt(state, stateCallsign))
		if callsign == "" {
			continue
		}
		out = append(out, models.Observation{
			Callsign: callsign,
			ICAO24:   strings.TrimSpace(stringAt(state, stateICAO24)),
			Lon:      floatAt(state, stateLon),
			Lat:      floatAt(state, stateLat),
			Altitude: floatAt(state, stateBaroAlt),
			Velocity: floatAt(state, stateVelocity),
		})
	}
	return out, nil
}

type historyFlight struct {
	Callsign            *string  `json:"callsign"`
	EstDepartureAirport *string  `json:"estDepartureAirport"`
	EstArrivalAirport   *string  `json:"estArrivalAirport"`
	BaroAltitude        *float64 `json:"baro_altitude"`
	FirstSeen           int64    `json:"firstSeen"`
	LastSeen            int64    `json:"lastSeen"`
}

// GetHistory lists completed flights for callsign in [begin, end]. OpenSky
// answers 404 when it knows of none; that is an empty result, not an error.
func (c *OpenSkyClient) GetHistory(ctx context.Context, callsign string, begin, end time.Time) ([]models.HistoricalRecord, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var body []historyFlight
	resp, err := req.
		SetQueryParams(map[string]string{
			"callsign": strings.TrimSpace(callsign),
			"begin":    strconv.FormatInt(begin.Unix(), 10),
			"end":      strconv.FormatInt(end.Unix(), 10),
		}).
		SetResult(&body).
		Get("/flights/callsign")
	if err != nil {
		return nil, fmt.Errorf("opensky history %s: %w", callsign, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("opensky history %s: status %d", callsign, resp.StatusCode())
	}

	out := make([]models.HistoricalRecord, 0, len(body))
	for _, f := range body {
		out = append(out, models.HistoricalRecord{
			Callsign:        strings.TrimSpace(models.Deref(f.Callsign)),
			DepartureICAO:   strings.TrimSpace(models.Deref(f.EstDepartureAirport)),
			DestinationICAO: strings.TrimSpace(models.Deref(f.EstArrivalAirport)),
			Altitude:        f.BaroAltitude,
			FirstSeen:       f.FirstSeen,
			LastSeen:        f.LastSeen,
		})
	}
	return out, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func stringAt(state []interface{}, i int) string {
	if i >= len(state) {
		return ""
	}
	s, _ := state[i].(string)
	return s
}

func floatAt(state []interface{}, i int) *float64 {
	if i >= len(state) {
		return nil
	}
	f, ok := state[i].(float64)
	if !ok {
		return nil
	}
	return &f
}

var (
	_ PositionSource = (*OpenSkyClient)(nil)
	_ HistorySource  = (*OpenSkyClient)(nil)
)
