package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const (
	feedGTFSRT   = "gtfsrt"
	feedSiriJSON = "siri-json"
	feedSiriXML  = "siri-xml"
)

// FeedPosition is one vehicle position read from an upstream feed.
type FeedPosition struct {
	VehicleID string
	Lat       float64
	Lon       float64
}

// PositionFeed is an upstream source of vehicle positions that is polled.
type PositionFeed interface {
	Kind() string
	Fetch(ctx context.Context) ([]FeedPosition, error)
}

func newPositionFeed(cfg FeedConfig) (PositionFeed, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Kind {
	case feedGTFSRT:
		return &GtfsRtFeed{url: cfg.URL, httpClient: client}, nil
	case feedSiriJSON:
		return &SiriJSONFeed{url: cfg.URL, httpClient: client}, nil
	case feedSiriXML:
		return &SiriXMLFeed{url: cfg.URL, httpClient: client}, nil
	default:
		return nil, fmt.Errorf("unknown feed kind %q", cfg.Kind)
	}
}

// fetchBody GETs url and returns the body of a 200 response.
func fetchBody(ctx context.Context, client *http.Client, url, kind string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s http status: %d", kind, resp.StatusCode)
	}
	return resp.Body, nil
}

type GtfsRtFeed struct {
	url        string
	httpClient *http.Client
}

func (s *GtfsRtFeed) Kind() string { return feedGTFSRT }

func (s *GtfsRtFeed) Fetch(ctx context.Context) ([]FeedPosition, error) {
	body, err := fetchBody(ctx, s.httpClient, s.url, s.Kind())
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("decode gtfs-rt: %w", err)
	}
	return positionsFromFeed(&feed), nil
}

func positionsFromFeed(feed *gtfs.FeedMessage) []FeedPosition {
	out := make([]FeedPosition, 0, len(feed.GetEntity()))
	for _, ent := range feed.GetEntity() {
		vp := ent.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}
		id := vp.GetVehicle().GetId()
		if id == "" {
			continue
		}
		out = append(out, FeedPosition{
			VehicleID: id,
			Lat:       float64(vp.GetPosition().GetLatitude()),
			Lon:       float64(vp.GetPosition().GetLongitude()),
		})
	}
	return out
}

// buildVehiclePositions renders fixes as a GTFS-RT full dataset.
func buildVehiclePositions(fixes []LocationFix, now time.Time) *gtfs.FeedMessage {
	incrementality := gtfs.FeedHeader_FULL_DATASET
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}
	for _, f := range fixes {
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id: proto.String(f.VehicleID),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(f.VehicleID)},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(f.Latitude)),
					Longitude: proto.Float32(float32(f.Longitude)),
				},
				Timestamp: proto.Uint64(uint64(f.Timestamp.Unix())),
			},
		})
	}
	return feed
}
