package headless

import (
	"context"

	"github.com/JakeFAU/techscan/internal/crawler"
)

// Promoter decides whether a statically fetched page should be rendered.
type Promoter interface {
	ShouldRender(resp crawler.FetchResponse) bool
}

// Router sends page requests to the renderer and everything else (intercepted
// stylesheets and scripts) to the plain HTTP fetcher.
type Router struct {
	pages     crawler.Fetcher
	resources crawler.Fetcher
	promote   Promoter
}

// NewRouter builds a Router that renders every page.
func NewRouter(pages, resources crawler.Fetcher) *Router {
	return &Router{pages: pages, resources: resources}
}

// NewPromotingRouter builds a Router that fetches pages statically first and
// renders only those promote flags. A failed render falls back to the static
// response.
func NewPromotingRouter(pages, resources crawler.Fetcher, promote Promoter) *Router {
	return &Router{pages: pages, resources: resources, promote: promote}
}

// Fetch implements crawler.Fetcher.
func (r *Router) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if request.Kind != crawler.KindPage {
		return r.resources.Fetch(ctx, request)
	}
	if r.promote == nil {
		return r.pages.Fetch(ctx, request)
	}

	static, err := r.resources.Fetch(ctx, request)
	if err != nil || !r.promote.ShouldRender(static) {
		return static, err
	}
	rendered, err := r.pages.Fetch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, err
		}
		return static, nil
	}
	return rendered, nil
}
