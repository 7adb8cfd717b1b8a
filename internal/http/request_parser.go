// Package http provides the REST API over the scale service.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path parameters and sort query strings.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"replenishment/internal/core"
	"replenishment/internal/drafts"
	"replenishment/internal/soa"
)

// maxBodyBytes bounds request bodies. A full scale table of ~200 countries
// is well under 1 MB.
const maxBodyBytes = 8 << 20

// errBadRequest marks malformed input that maps to 400.
var errBadRequest = errors.New("bad request")

// tableRequest carries the caller's working set.
type tableRequest struct {
	Records []core.ContributionRecord `json:"records"`
}

type editRequest struct {
	tableRequest
	Edit soa.Edit `json:"edit"`
}

type revertRequest struct {
	tableRequest
	Row   int           `json:"row"`
	Field soa.FieldName `json:"field"`
}

type sortRequest struct {
	tableRequest
	Field string `json:"field"`
	Dir   string `json:"dir"`
}

type addRowRequest struct {
	tableRequest
	CountryID int64  `json:"country_id"`
	Country   string `json:"country"`
	ISO3      string `json:"iso3"`
}

type periodRequest struct {
	Amount           *json.Number `json:"amount"`
	PreviouslyUnused *json.Number `json:"previously_unused"`
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// periodParam returns the {period} path parameter once it parses as
// "<start>-<end>".
func periodParam(r *http.Request) (string, error) {
	key := strings.TrimSpace(chi.URLParam(r, "period"))
	if _, _, err := core.ParsePeriodKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// rowParam returns the {row} path parameter.
func rowParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "row")
	row, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: row %q is not a number", errBadRequest, raw)
	}
	return row, nil
}

// draftKeyParam builds a draft key from the path.
func draftKeyParam(r *http.Request) (drafts.Key, error) {
	k := drafts.Key{
		RecordType: sanitizeInput(chi.URLParam(r, "recordType")),
		Period:     sanitizeInput(chi.URLParam(r, "period")),
		TableType:  sanitizeInput(chi.URLParam(r, "tableType")),
	}
	if err := k.Validate(); err != nil {
		return drafts.Key{}, err
	}
	return k, nil
}

// sortParams reads ?sort=&dir=. ok is false when no sort was requested.
func sortParams(query url.Values) (field soa.FieldName, dir soa.Direction, ok bool, err error) {
	raw := strings.TrimSpace(query.Get("sort"))
	if raw == "" {
		return "", "", false, nil
	}
	return parseSort(raw, query.Get("dir"))
}

func parseSort(rawField, rawDir string) (soa.FieldName, soa.Direction, bool, error) {
	field, err := soa.ParseFieldName(rawField)
	if err != nil {
		return "", "", false, err
	}
	dir, err := soa.ParseDirection(rawDir)
	if err != nil {
		return "", "", false, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return field, dir, true, nil
}

// toPeriod builds the period named by key from a request body.
func (p periodRequest) toPeriod(key string) (core.Period, error) {
	start, end, err := core.ParsePeriodKey(key)
	if err != nil {
		return core.Period{}, err
	}
	period := core.Period{StartYear: start, EndYear: end}
	if p.Amount == nil {
		return core.Period{}, fmt.Errorf("%w: amount is required", errBadRequest)
	}
	if period.Amount, err = core.ParseDecimal(p.Amount.String()); err != nil {
		return core.Period{}, fmt.Errorf("%w: amount: %v", core.ErrInvalidAmount, err)
	}
	if p.PreviouslyUnused != nil {
		if period.PreviouslyUnused, err = core.ParseDecimal(p.PreviouslyUnused.String()); err != nil {
			return core.Period{}, fmt.Errorf("%w: previously_unused: %v", core.ErrInvalidAmount, err)
		}
	}
	return period, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
