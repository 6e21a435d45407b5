package store

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/kjstillabower/weather-ingest-service/internal/config"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
)

// PostgRESTStore inserts through a Supabase project's REST endpoint, the same
// path the hosted function used. Row-level security applies with the given key.
type PostgRESTStore struct {
	client    *postgrest.Client
	transport *http.Transport
	table     string
}

// NewPostgRESTStore targets <baseURL>/rest/v1/<table>. A schema-qualified
// table ("private.weather_data") switches the PostgREST profile.
func NewPostgRESTStore(baseURL, apiKey, table string, timeout time.Duration) (*PostgRESTStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("postgrest: invalid base URL %q", baseURL)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("postgrest: api key is required")
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("postgrest: invalid table name %q", table)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	schema := ""
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema, table = table[:i], table[i+1:]
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
	}
	client := postgrest.NewClient(strings.TrimRight(baseURL, "/")+"/rest/v1", schema, map[string]string{
		"apikey":        apiKey,
		"Authorization": "Bearer " + apiKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("postgrest: %w", client.ClientError)
	}
	client.Transport.Parent = statusTransport{next: transport}

	return &PostgRESTStore{client: client, transport: transport, table: table}, nil
}

func (s *PostgRESTStore) Insert(ctx context.Context, obs models.Observation) error {
	q := s.client.From(s.table).Insert(toRow(obs), false, "", "minimal", "")
	if err := execute(ctx, q); err != nil {
		return fmt.Errorf("postgrest: insert into %s: %w", s.table, err)
	}
	return nil
}

// Ping issues a HEAD select with limit=1; any 2xx means the project and key work.
func (s *PostgRESTStore) Ping(ctx context.Context) error {
	q := s.client.From(s.table).Select("location", "", true).Limit(1, "")
	if err := execute(ctx, q); err != nil {
		return fmt.Errorf("postgrest: ping: %w", err)
	}
	return nil
}

func (s *PostgRESTStore) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func (s *PostgRESTStore) Backend() string { return config.BackendPostgREST }

// execute runs q and returns early when ctx ends. The request itself is
// bounded by the transport timeouts.
func execute(ctx context.Context, q *postgrest.FilterBuilder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, _, err := q.Execute()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// statusTransport turns non-2xx replies into errors carrying a body excerpt,
// so RLS and constraint failures keep PostgREST's message.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, excerpt(resp.Body))
}

func excerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
