package sessionservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// GeoLookup resolves a server address to a rough location.
type GeoLookup interface {
	Lookup(ctx context.Context, address string) (sessiondb.ServerGeo, error)
}

// HTTPGeoLookup resolves locations through the ip-api.com JSON endpoint.
type HTTPGeoLookup struct {
	Client  *http.Client
	BaseURL string
}

func NewHTTPGeoLookup() *HTTPGeoLookup {
	return &HTTPGeoLookup{
		Client:  &http.Client{Timeout: 10 * time.Second},
		BaseURL: "http://ip-api.com/json",
	}
}

func (g *HTTPGeoLookup) Lookup(ctx context.Context, address string) (sessiondb.ServerGeo, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,lat,lon", g.BaseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sessiondb.ServerGeo{}, fmt.Errorf("failed to build geo request: %w", err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return sessiondb.ServerGeo{}, fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sessiondb.ServerGeo{}, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body struct {
		Status     string  `json:"status"`
		Message    string  `json:"message"`
		Country    string  `json:"country"`
		RegionName string  `json:"regionName"`
		City       string  `json:"city"`
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return sessiondb.ServerGeo{}, fmt.Errorf("failed to decode geo response: %w", err)
	}
	if body.Status != "success" {
		return sessiondb.ServerGeo{}, fmt.Errorf("geo lookup rejected %q: %s", address, body.Message)
	}
	return sessiondb.ServerGeo{
		Country:   body.Country,
		Region:    body.RegionName,
		City:      body.City,
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}, nil
}

// enrichServerGeo runs outside the ingest transaction; a failed lookup just
// leaves the server unlocated until it is seen again.
func (s *TrackerService) enrichServerGeo(ctx context.Context, guid sharedtypes.ServerGuid, address string) {
	if s.geo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	geo, err := s.geo.Lookup(ctx, address)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve server location",
			attr.ServerGuid("server_guid", guid),
			attr.Error(err),
		)
		return
	}
	if err := s.repo.UpdateServerGeo(ctx, nil, guid, geo); err != nil {
		s.logger.WarnContext(ctx, "failed to store server location",
			attr.ServerGuid("server_guid", guid),
			attr.Error(err),
		)
		return
	}
	s.logger.InfoContext(ctx, "server location resolved",
		attr.ServerGuid("server_guid", guid),
		attr.String("country", geo.Country),
	)
}
