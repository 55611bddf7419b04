package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// WikimediaImageResolver checks Wikimedia Commons for a photo named after the
// aircraft's transponder address.
type WikimediaImageResolver struct {
	http    *resty.Client
	baseURL string
}

func NewWikimediaImageResolver(baseURL string, timeout time.Duration) *WikimediaImageResolver {
	return &WikimediaImageResolver{
		http:    newClient("wikimedia", "", timeout),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// LookupImage returns the thumbnail URL if a HEAD request for it answers 200.
func (r *WikimediaImageResolver) LookupImage(ctx context.Context, icao24 string) (string, bool) {
	icao24 = strings.ToLower(strings.TrimSpace(icao24))
	if icao24 == "" {
		return "", false
	}

	imageURL := r.baseURL + "/wiki/Special:FilePath/" + url.PathEscape(icao24+".jpg") + "?width=240"
	resp, err := r.http.R().SetContext(ctx).Head(imageURL)
	if err != nil || resp.StatusCode() != http.StatusOK {
		return "", false
	}
	return imageURL, true
}

var _ ImageProvider = (*WikimediaImageResolver)(nil)
