package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

var errTrailingData = errors.New("trailing data after JSON body")

type ingestHandler struct {
	relay   *Relay
	maxBody int64
	log     *logrus.Entry
}

func newIngestHandler(relay *Relay, maxBody int64, logger *logrus.Logger) *ingestHandler {
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	return &ingestHandler{relay: relay, maxBody: maxBody, log: logger.WithField("component", "ingest")}
}

// handleJSON accepts {"vehicleId", "latitude", "longitude"}.
func (h *ingestHandler) handleJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	var in FixInput
	if err := dec.Decode(&in); err != nil {
		h.rejectBody(w, err)
		return
	}
	// the body must hold exactly one JSON value
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		h.rejectBody(w, err)
		return
	}
	h.accept(w, in, "http")
}

// handleNMEA accepts raw NMEA sentences for the vehicle named in the query.
func (h *ingestHandler) handleNMEA(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	in := FixInput{VehicleID: r.URL.Query().Get("vehicleId")}
	lat, lon, err := positionFromNMEA(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.rejectBody(w, err)
			return
		}
		if in.VehicleID != "" {
			h.relay.stats.Rejected.Add(1)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// a missing vehicle id is the more useful message
	} else {
		in.Latitude, in.Longitude = coords(lat, lon)
	}
	h.accept(w, in, "nmea")
}

func (h *ingestHandler) accept(w http.ResponseWriter, in FixInput, source string) {
	_, err := h.relay.Ingest(in, source)
	var verr *ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrRelayClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.WithError(err).Error("ingest failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *ingestHandler) rejectBody(w http.ResponseWriter, err error) {
	var (
		mbe *http.MaxBytesError
		ute *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &mbe):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))
	case errors.As(err, &ute):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s has invalid type %s", ute.Field, ute.Value))
	default:
		writeError(w, http.StatusBadRequest, "invalid JSON body")
	}
	h.relay.stats.Rejected.Add(1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
