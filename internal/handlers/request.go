package handlers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/services"
)

// viewSignals are the widget values of one render. The SSE endpoint reads
// them from the Datastar payload, every other endpoint from the query string.
type viewSignals struct {
	Dataset string   `json:"dataset"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Region  []string `json:"region"`
	State   []string `json:"state"`
	City    []string `json:"city"`
}

func signalsFromQuery(q url.Values) viewSignals {
	return viewSignals{
		Dataset: q.Get("dataset"),
		Start:   q.Get("start"),
		End:     q.Get("end"),
		Region:  nonBlank(q["region"]),
		State:   nonBlank(q["state"]),
		City:    nonBlank(q["city"]),
	}
}

func (s viewSignals) datasetID() string {
	if id := strings.TrimSpace(s.Dataset); id != "" {
		return id
	}
	return services.DefaultDatasetID
}

func (s viewSignals) request() (models.ViewRequest, error) {
	start, err := parseDay("start", s.Start)
	if err != nil {
		return models.ViewRequest{}, err
	}
	end, err := parseDay("end", s.End)
	if err != nil {
		return models.ViewRequest{}, err
	}
	return models.ViewRequest{
		Start: start,
		End:   end,
		Selection: models.Selection{
			Regions: nonBlank(s.Region),
			States:  nonBlank(s.State),
			Cities:  nonBlank(s.City),
		},
	}, nil
}

func parseDay(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.ValidationWrap(err, fmt.Sprintf("%s must be a date formatted YYYY-MM-DD", name))
	}
	return t, nil
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
