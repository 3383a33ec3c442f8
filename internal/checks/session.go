package checks

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/webaudit/internal/webclient"
)

// Session is the per-scan state shared by the checks of a plan. The target
// page is fetched at most once.
type Session struct {
	URL    string
	Client webclient.WebClient

	once sync.Once
	page *webclient.Response
	doc  *goquery.Document
	err  error
}

func NewSession(target string, client webclient.WebClient) *Session {
	return &Session{URL: target, Client: client}
}

// Page returns the fetched target page.
func (s *Session) Page(ctx context.Context) (*webclient.Response, error) {
	s.once.Do(func() {
		s.page, s.err = s.Client.Get(ctx, s.URL)
		if s.err != nil {
			return
		}
		s.doc, s.err = goquery.NewDocumentFromReader(bytes.NewReader(s.page.Body))
		if s.err != nil {
			s.err = fmt.Errorf("parse page: %w", s.err)
		}
	})
	return s.page, s.err
}

// Document returns the parsed target page.
func (s *Session) Document(ctx context.Context) (*goquery.Document, error) {
	if _, err := s.Page(ctx); err != nil {
		return nil, err
	}
	return s.doc, nil
}

// FetchWithParam fetches the target with one query parameter set.
func (s *Session) FetchWithParam(ctx context.Context, key, value string) (*webclient.Response, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return s.Client.Get(ctx, u.String())
}
