package lifecycle

import (
	"context"
	"errors"

	"github.com/entrhq/adspower/pkg/browser"
)

// ErrEmptyPage is returned when a page rendered no content.
var ErrEmptyPage = errors.New("page returned no content")

// HTML loads url in a throwaway profile and returns the rendered page.
func (o *Orchestrator) HTML(ctx context.Context, url string) Outcome[string] {
	return WithProfile(ctx, o, func(ctx context.Context, s *browser.Session) (string, error) {
		if err := s.Navigate(ctx, url); err != nil {
			return "", err
		}
		content, err := s.Content(ctx)
		if err != nil {
			return "", err
		}
		if content == "" {
			return "", ErrEmptyPage
		}
		return content, nil
	})
}

// Text is like HTML but returns the page's readable text.
func (o *Orchestrator) Text(ctx context.Context, url string) Outcome[string] {
	return WithProfile(ctx, o, func(ctx context.Context, s *browser.Session) (string, error) {
		if err := s.Navigate(ctx, url); err != nil {
			return "", err
		}
		text, err := s.Text(ctx)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", ErrEmptyPage
		}
		return text, nil
	})
}
