package providers

import (
	"context"
	"strings"
	"time"

	"flight-radar/internal/models"

	"github.com/go-resty/resty/v2"
)

type flightWallLookup struct {
	DisplayNameShort string `json:"display_name_short"`
	DisplayNameFull  string `json:"display_name_full"`
}

// FlightWallClient resolves operator and aircraft-type names from the
// FlightWall public CDN:
//
//	/oss/lookup/airline/{ICAO}.json  -> display_name_full
//	/oss/lookup/aircraft/{ICAO}.json -> display_name_short, display_name_full
type FlightWallClient struct {
	http *resty.Client
}

func NewFlightWallClient(baseURL string, timeout time.Duration) *FlightWallClient {
	return &FlightWallClient{
		http: newClient("flightwall", strings.TrimSuffix(baseURL, "/"), timeout),
	}
}

func (c *FlightWallClient) LookupName(ctx context.Context, code string, kind models.LabelKind) (models.Label, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || (kind != models.LabelOperator && kind != models.LabelAircraftType) {
		return models.Label{}, false
	}

	var body flightWallLookup
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetPathParams(map[string]string{"kind": string(kind), "code": code}).
		SetResult(&body).
		// The CDN serves these files as text/plain on some edges.
		ForceContentType("application/json").
		Get("/oss/lookup/{kind}/{code}.json")
	if err != nil || resp.IsError() {
		return models.Label{}, false
	}

	label := models.Label{Full: strings.TrimSpace(body.DisplayNameFull)}
	if kind == models.LabelAircraftType {
		label.Short = strings.TrimSpace(body.DisplayNameShort)
	}
	if label.IsEmpty() {
		return models.Label{}, false
	}
	return label, true
}

var _ LabelProvider = (*FlightWallClient)(nil)
