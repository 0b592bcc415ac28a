package bigqueryad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
)

const service = "bigquery"

// Sink loads rows with batch load jobs fed from newline-delimited JSON.
type Sink struct {
	c        *bigquery.Client
	location string
}

var _ domain.Warehouse = (*Sink)(nil)

func New(ctx context.Context, project, location string, opts ...option.ClientOption) (*Sink, error) {
	if project == "" {
		return nil, errors.New("bigquery project is required")
	}
	c, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	c.Location = location
	return &Sink{c: c, location: location}, nil
}

func (s *Sink) Close() error { return s.c.Close() }

// Load creates the dataset if needed and runs one load job. The table is
// created from t.Schema when missing. An empty row set is a no-op.
func (s *Sink) Load(ctx context.Context, t domain.Table, rows []domain.Row, mode domain.WriteMode) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.ensureDataset(ctx, t.Dataset); err != nil {
		return 0, err
	}
	body, err := encodeNDJSON(rows)
	if err != nil {
		return 0, fmt.Errorf("encode rows for %s: %w", t, err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(body))
	src.SourceFormat = bigquery.JSON
	src.Schema = toSchema(t.Schema)

	loader := s.c.Dataset(t.Dataset).Table(t.Name).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = disposition(mode)

	start := time.Now()
	job, err := loader.Run(ctx)
	if err != nil {
		observability.ObserveExternal(service, "load", statusOf(err), time.Since(start))
		return 0, fmt.Errorf("start load into %s: %w", t, err)
	}
	status, err := job.Wait(ctx)
	observability.ObserveExternal(service, "load", statusOf(err), time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("wait for load into %s: %w", t, err)
	}
	if err := status.Err(); err != nil {
		se := &domain.SinkError{Table: t.String()}
		for _, e := range status.Errors {
			se.Errors = append(se.Errors, e.Error())
		}
		if len(se.Errors) == 0 {
			se.Errors = []string{err.Error()}
		}
		return 0, se
	}
	log.Debug().Str("table", t.String()).Str("job", job.ID()).Dur("took", time.Since(start)).Msg("load job done")
	return int64(len(rows)), nil
}

func (s *Sink) ensureDataset(ctx context.Context, name string) error {
	ds := s.c.Dataset(name)
	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: s.location}); err != nil && !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("create dataset %s: %w", name, err)
	}
	log.Info().Str("dataset", name).Str("location", s.location).Msg("dataset created")
	return nil
}

func disposition(m domain.WriteMode) bigquery.TableWriteDisposition {
	if m == domain.WriteAppend {
		return bigquery.WriteAppend
	}
	return bigquery.WriteTruncate
}

func toSchema(in domain.Schema) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(in))
	for _, f := range in {
		out = append(out, &bigquery.FieldSchema{Name: f.Name, Type: fieldType(f.Type), Required: f.Required})
	}
	return out
}

func fieldType(t domain.FieldType) bigquery.FieldType {
	switch t {
	case domain.TypeInteger:
		return bigquery.IntegerFieldType
	case domain.TypeFloat:
		return bigquery.FloatFieldType
	case domain.TypeTimestamp:
		return bigquery.TimestampFieldType
	case domain.TypeDate:
		return bigquery.DateFieldType
	default:
		return bigquery.StringFieldType
	}
}

// encodeNDJSON writes one JSON object per line.
func encodeNDJSON(rows []domain.Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
