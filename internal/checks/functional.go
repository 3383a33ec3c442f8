package checks

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// navLinksPerMenu caps how many links of one <nav> are counted.
const navLinksPerMenu = 5

// Functional is the default seven-step page structure plan.
func Functional() Plan {
	return Plan{
		Name: PlanFunctional,
		Checks: []Check{
			{Name: "Page has title", Run: pageHasTitle},
			{Name: "Body element exists", Run: docCheck(func(d *goquery.Document) error {
				if d.Find("body").Length() == 0 {
					return errors.New("Body not found")
				}
				return nil
			})},
			{Name: "H1 tag exists", Run: elementExists("h1", "No H1 tag found")},
			{Name: "Images exist", Run: elementExists("img", "No images found")},
			{Name: "Links exist", Run: elementExists("a", "No links found")},
			{Name: "Meta description exists", Run: metaDescription},
			{Name: "Navigation links", Run: navigationLinks},
		},
	}
}

func docCheck(fn func(*goquery.Document) error) func(context.Context, *Session) error {
	return func(ctx context.Context, s *Session) error {
		doc, err := s.Document(ctx)
		if err != nil {
			return err
		}
		return fn(doc)
	}
}

func elementExists(selector, missing string) func(context.Context, *Session) error {
	return docCheck(func(d *goquery.Document) error {
		if d.Find(selector).Length() == 0 {
			return errors.New(missing)
		}
		return nil
	})
}

func pageHasTitle(ctx context.Context, s *Session) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(doc.Find("title").First().Text()) == "" {
		return errors.New("Title is empty")
	}
	return nil
}

func metaDescription(ctx context.Context, s *Session) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	meta := doc.Find(`meta[name="description"]`).First()
	if meta.Length() == 0 {
		return errors.New("Meta description missing")
	}
	if content, _ := meta.Attr("content"); strings.TrimSpace(content) == "" {
		return errors.New("Meta description empty")
	}
	return nil
}

func navigationLinks(ctx context.Context, s *Session) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	count := 0
	doc.Find("nav").Each(func(_ int, nav *goquery.Selection) {
		count += min(nav.Find("a").Length(), navLinksPerMenu)
	})
	if count == 0 {
		return errors.New("No navigation links found")
	}
	return nil
}
