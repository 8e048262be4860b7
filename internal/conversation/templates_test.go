package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func TestPostgresTemplatesReturnsActiveBody(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	templates := NewPostgresTemplates(mock)

	mock.ExpectQuery("SELECT body FROM prompt_templates").
		WithArgs("MOTO_VENTA").
		WillReturnRows(pgxmock.NewRows([]string{"body"}).
			AddRow("Sos el asistente de ventas de TuVendedor."))

	body, err := templates.ActiveTemplate(context.Background(), "MOTO_VENTA")
	if err != nil {
		t.Fatalf("active template: %v", err)
	}
	if body != "Sos el asistente de ventas de TuVendedor." {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestPostgresTemplatesNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	templates := NewPostgresTemplates(mock)

	mock.ExpectQuery("SELECT body FROM prompt_templates").
		WithArgs("NO_EXISTE").
		WillReturnRows(pgxmock.NewRows([]string{"body"}))

	_, err = templates.ActiveTemplate(context.Background(), "NO_EXISTE")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestPostgresTemplatesStoreFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	templates := NewPostgresTemplates(mock)

	mock.ExpectQuery("SELECT body FROM prompt_templates").
		WithArgs("MOTO_VENTA").
		WillReturnError(errors.New("connection refused"))

	_, err = templates.ActiveTemplate(context.Background(), "MOTO_VENTA")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

type countingSource struct {
	body  string
	err   error
	calls int
}

func (s *countingSource) ActiveTemplate(ctx context.Context, code string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.body, nil
}

func TestCachedTemplatesReadThrough(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	source := &countingSource{body: "plantilla base"}
	cached := NewCachedTemplates(source, client, time.Minute, nil)

	for i := 0; i < 3; i++ {
		body, err := cached.ActiveTemplate(context.Background(), "GENERIC")
		if err != nil {
			t.Fatalf("active template: %v", err)
		}
		if body != "plantilla base" {
			t.Fatalf("unexpected body: %q", body)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected a single source read, got %d", source.calls)
	}
	if got, err := srv.Get("prompt_template:GENERIC"); err != nil || got != "plantilla base" {
		t.Fatalf("expected cached body, got %q (%v)", got, err)
	}
}

func TestCachedTemplatesNotFoundIsNotCached(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	source := &countingSource{err: ErrTemplateNotFound}
	cached := NewCachedTemplates(source, client, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := cached.ActiveTemplate(context.Background(), "NO_EXISTE"); !errors.Is(err, ErrTemplateNotFound) {
			t.Fatalf("expected ErrTemplateNotFound, got %v", err)
		}
	}
	if source.calls != 2 {
		t.Fatalf("misses must not be cached, source read %d times", source.calls)
	}
}

func TestCachedTemplatesFallsBackWhenRedisDown(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	srv.Close()

	source := &countingSource{body: "plantilla base"}
	cached := NewCachedTemplates(source, client, time.Minute, nil)

	body, err := cached.ActiveTemplate(context.Background(), "GENERIC")
	if err != nil {
		t.Fatalf("active template: %v", err)
	}
	if body != "plantilla base" {
		t.Fatalf("unexpected body: %q", body)
	}
	if source.calls != 1 {
		t.Fatalf("expected source fallback, got %d calls", source.calls)
	}
}
