package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// SiriJSONFeed reads SIRI VehicleMonitoring deliveries encoded as JSON.
// Producers disagree on wrapping and on string vs number coordinates, so
// the document is walked loosely.
type SiriJSONFeed struct {
	url        string
	httpClient *http.Client
}

func (s *SiriJSONFeed) Kind() string { return feedSiriJSON }

func (s *SiriJSONFeed) Fetch(ctx context.Context) ([]FeedPosition, error) {
	body, err := fetchBody(ctx, s.httpClient, s.url, s.Kind())
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var root map[string]any
	if err := json.NewDecoder(body).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode siri json: %w", err)
	}
	return positionsFromSiriJSON(root), nil
}

func positionsFromSiriJSON(root map[string]any) []FeedPosition {
	if siri, ok := root["Siri"].(map[string]any); ok {
		root = siri
	}
	sd, _ := root["ServiceDelivery"].(map[string]any)
	deliveries, _ := sd["VehicleMonitoringDelivery"].([]any)

	var out []FeedPosition
	for _, d := range deliveries {
		delivery, _ := d.(map[string]any)
		activities, _ := delivery["VehicleActivity"].([]any)
		for _, a := range activities {
			activity, _ := a.(map[string]any)
			journey, _ := activity["MonitoredVehicleJourney"].(map[string]any)
			if journey == nil {
				continue
			}
			id := siriString(journey["VehicleRef"])
			if id == "" {
				ref, _ := journey["FramedVehicleJourneyRef"].(map[string]any)
				id = siriString(ref["DatedVehicleJourneyRef"])
			}
			loc, _ := journey["VehicleLocation"].(map[string]any)
			lat, latOK := siriFloat(loc["Latitude"])
			lon, lonOK := siriFloat(loc["Longitude"])
			if id == "" || !latOK || !lonOK {
				continue
			}
			out = append(out, FeedPosition{VehicleID: id, Lat: lat, Lon: lon})
		}
	}
	return out
}

// siriString accepts both "X" and {"value": "X"} forms.
func siriString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		s, _ := t["value"].(string)
		return s
	}
	return ""
}

func siriFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// SiriXMLFeed reads SIRI VehicleMonitoring XML. Element names are matched
// on their local part so any namespace prefix works.
type SiriXMLFeed struct {
	url        string
	httpClient *http.Client
}

type siriVehicleActivity struct {
	VehicleRef string `xml:"VehicleRef"`
	Journey    struct {
		VehicleRef string       `xml:"VehicleRef"`
		Location   siriLocation `xml:"VehicleLocation"`
	} `xml:"MonitoredVehicleJourney"`
	Location siriLocation `xml:"VehicleLocation"`
}

type siriLocation struct {
	Latitude  string `xml:"Latitude"`
	Longitude string `xml:"Longitude"`
}

func (s *SiriXMLFeed) Kind() string { return feedSiriXML }

func (s *SiriXMLFeed) Fetch(ctx context.Context) ([]FeedPosition, error) {
	body, err := fetchBody(ctx, s.httpClient, s.url, s.Kind())
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return positionsFromSiriXML(body)
}

func positionsFromSiriXML(r io.Reader) ([]FeedPosition, error) {
	dec := xml.NewDecoder(r)
	var out []FeedPosition
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode siri xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "VehicleActivity" {
			continue
		}
		var va siriVehicleActivity
		if err := dec.DecodeElement(&va, &se); err != nil {
			return nil, fmt.Errorf("decode siri vehicle activity: %w", err)
		}
		id := va.Journey.VehicleRef
		if id == "" {
			id = va.VehicleRef
		}
		loc := va.Journey.Location
		if loc.Latitude == "" {
			loc = va.Location
		}
		lat, err1 := strconv.ParseFloat(loc.Latitude, 64)
		lon, err2 := strconv.ParseFloat(loc.Longitude, 64)
		if id == "" || err1 != nil || err2 != nil {
			continue
		}
		out = append(out, FeedPosition{VehicleID: id, Lat: lat, Lon: lon})
	}
}
