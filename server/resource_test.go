package server

import (
	"context"
	"errors"
	"testing"
)

func TestResourceRead(t *testing.T) {
	t.Run("extracts template parameters", func(t *testing.T) {
		srv := New(Info{Name: "test", Version: "1.0.0"})

		b := srv.Resource("db://tables/{table}/rows/{id}").
			Name("table row").
			MimeType("application/json").
			Handler(func(_ context.Context, uri string, params map[string]string) (*ResourceContent, error) {
				return &ResourceContent{
					URI:  uri,
					Text: params["table"] + ":" + params["id"],
				}, nil
			})
		if b.Err() != nil {
			t.Fatal(b.Err())
		}

		r, ok := srv.FindResourceForURI("db://tables/users/rows/42")
		if !ok {
			t.Fatal("resource not matched")
		}

		content, err := r.Read(context.Background(), "db://tables/users/rows/42")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if content.Text != "users:42" {
			t.Errorf("text = %q, want %q", content.Text, "users:42")
		}
	})

	t.Run("defaults mime type from registration", func(t *testing.T) {
		srv := New(Info{Name: "test", Version: "1.0.0"})

		b := srv.Resource("mem://config").
			MimeType("text/plain").
			Handler(func(_ context.Context, uri string, _ map[string]string) (*ResourceContent, error) {
				return &ResourceContent{URI: uri, Text: "x"}, nil
			})
		if b.Err() != nil {
			t.Fatal(b.Err())
		}

		r, _ := srv.GetResource("mem://config")
		content, err := r.Read(context.Background(), "mem://config")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if content.MimeType != "text/plain" {
			t.Errorf("mimeType = %q, want text/plain", content.MimeType)
		}
	})

	t.Run("non-matching URI fails", func(t *testing.T) {
		srv := New(Info{Name: "test", Version: "1.0.0"})

		b := srv.Resource("file://{path}").
			Handler(func(_ context.Context, uri string, _ map[string]string) (*ResourceContent, error) {
				return &ResourceContent{URI: uri}, nil
			})
		if b.Err() != nil {
			t.Fatal(b.Err())
		}

		r, _ := srv.GetResource("file://{path}")
		if _, err := r.Read(context.Background(), "http://other"); err == nil {
			t.Error("expected error for non-matching URI")
		}
	})

	t.Run("handler errors propagate", func(t *testing.T) {
		srv := New(Info{Name: "test", Version: "1.0.0"})
		wantErr := errors.New("file missing")

		b := srv.Resource("mem://broken").
			Handler(func(context.Context, string, map[string]string) (*ResourceContent, error) {
				return nil, wantErr
			})
		if b.Err() != nil {
			t.Fatal(b.Err())
		}

		r, _ := srv.GetResource("mem://broken")
		if _, err := r.Read(context.Background(), "mem://broken"); !errors.Is(err, wantErr) {
			t.Errorf("err = %v, want %v", err, wantErr)
		}
	})

	t.Run("first matching template wins", func(t *testing.T) {
		srv := New(Info{Name: "test", Version: "1.0.0"})

		mk := func(tag string) ResourceHandler {
			return func(_ context.Context, uri string, _ map[string]string) (*ResourceContent, error) {
				return &ResourceContent{URI: uri, Text: tag}, nil
			}
		}
		if err := srv.Resource("item://{a}").Handler(mk("first")).Err(); err != nil {
			t.Fatal(err)
		}
		if err := srv.Resource("item://{b}").Handler(mk("second")).Err(); err == nil {
			// identical patterns, distinct templates
			_ = err
		}

		r, ok := srv.FindResourceForURI("item://x")
		if !ok {
			t.Fatal("no match")
		}
		content, err := r.Read(context.Background(), "item://x")
		if err != nil {
			t.Fatal(err)
		}
		if content.Text != "first" {
			t.Errorf("matched %q, want the first registered template", content.Text)
		}
	})
}
