package usecase_test

import (
	"errors"
	"testing"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/usecase"
)

func TestRedirectPolicy_Validate(t *testing.T) {
	p := usecase.NewRedirectPolicy([]string{"App.Example.com", " "})

	allowed := []string{
		"/library",
		"/library?tab=new#top",
		"https://app.example.com/library",
		"http://APP.example.com:8443/",
	}
	for _, target := range allowed {
		if got, err := p.Validate(target); err != nil || got != target {
			t.Errorf("Validate(%q) = %q, %v; want allowed", target, got, err)
		}
	}

	rejected := []string{
		"",
		"//evil.com/path",
		`/\evil.com`,
		"library",
		"https://evil.com/",
		"https://app.example.com.evil.com/",
		"https://user@app.example.com/",
		"javascript:alert(1)",
		"ftp://app.example.com/",
	}
	for _, target := range rejected {
		if _, err := p.Validate(target); !errors.Is(err, domain.ErrInvalidRedirect) {
			t.Errorf("Validate(%q): expected ErrInvalidRedirect, got %v", target, err)
		}
	}
}
