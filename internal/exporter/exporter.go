package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

// Format is an export file type.
type Format string

const (
	// FormatCSV is comma separated values.
	FormatCSV Format = "csv"
	// FormatJSON is a JSON array of objects keyed by header.
	FormatJSON Format = "json"
)

// ParseFormat validates a requested format.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", apperr.FieldError("format", "Select a valid choice.")
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Payload is a rendered export file.
type Payload struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Table is the header row and cell rows of an export.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Build renders trips for user into a table.
func Build(user *models.User, trips []*models.Trip) Table {
	columns := ColumnsFor(user)
	table := Table{Headers: make([]string, len(columns)), Rows: make([][]string, 0, len(trips))}
	for i, c := range columns {
		table.Headers[i] = c.Header(user)
	}
	for _, trip := range trips {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = c.Value(user, trip)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// Encode writes table in format f.
func (t Table) Encode(f Format) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatCSV:
		w := csv.NewWriter(&buf)
		if errWrite := w.Write(t.Headers); errWrite != nil {
			return nil, fmt.Errorf("exporter: write csv: %w", errWrite)
		}
		if errWrite := w.WriteAll(t.Rows); errWrite != nil {
			return nil, fmt.Errorf("exporter: write csv: %w", errWrite)
		}
	case FormatJSON:
		buf.WriteByte('[')
		for i, row := range t.Rows {
			if i > 0 {
				buf.WriteByte(',')
			}
			if errRow := writeObject(&buf, t.Headers, row); errRow != nil {
				return nil, errRow
			}
		}
		buf.WriteByte(']')
	default:
		return nil, fmt.Errorf("exporter: unknown format %q", f)
	}
	return buf.Bytes(), nil
}

// writeObject writes one row as a JSON object keeping column order.
func writeObject(buf *bytes.Buffer, headers, row []string) error {
	buf.WriteByte('{')
	for i, h := range headers {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, errKey := json.Marshal(h)
		if errKey != nil {
			return fmt.Errorf("exporter: encode key: %w", errKey)
		}
		value, errValue := json.Marshal(row[i])
		if errValue != nil {
			return fmt.Errorf("exporter: encode value: %w", errValue)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return nil
}

// Service exports a user's trips.
type Service struct {
	trips *store.TripStore
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{trips: store.NewTripStore(db)}
}

// Export renders every trip user owns, newest first.
func (s *Service) Export(ctx context.Context, user *models.User, format Format) (*Payload, error) {
	if user == nil {
		return nil, apperr.Forbidden("You must be signed in to do that.")
	}
	trips, errTrips := s.trips.ListForUser(ctx, user.ID)
	if errTrips != nil {
		return nil, errTrips
	}
	body, errEncode := Build(user, trips).Encode(format)
	if errEncode != nil {
		return nil, errEncode
	}
	log.WithFields(log.Fields{"user": user.Username, "format": string(format)}).
		Infof("%s exported %d trips", user.Name, len(trips))
	return &Payload{
		Filename:    "trips." + string(format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}
