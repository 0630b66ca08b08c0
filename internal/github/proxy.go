package github

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("repolens/github")

// DefaultCacheTTL bounds how stale proxied repository data can be. Repo
// content changes rarely compared to viewer request rates, so a short TTL
// cuts most upstream traffic without viewers noticing.
const DefaultCacheTTL = 60 * time.Second

// Proxy serves repository reads for viewers, caching responses per
// repository resource. Cache keys never include tokens or session IDs;
// viewers of the same share hit the same entries.
type Proxy struct {
	client *Client
	cache  *Cache
}

// NewProxy creates a proxy around the given client.
func NewProxy(client *Client, cacheTTL time.Duration) *Proxy {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Proxy{
		client: client,
		cache:  NewCache(cacheTTL),
	}
}

// Tree returns the recursive tree of a branch; empty branch means the
// repository's default.
func (p *Proxy) Tree(ctx context.Context, token, owner, repo, branch string) (*Tree, error) {
	ctx, span := tracer.Start(ctx, "github.proxy_tree",
		trace.WithAttributes(attribute.String("repo", owner+"/"+repo)))
	defer span.End()

	key := fmt.Sprintf("tree:%s/%s@%s", owner, repo, branch)
	v, err := p.cache.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return p.client.GetTree(ctx, token, owner, repo, branch)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*Tree), nil
}

// File returns a single file's contents.
func (p *Proxy) File(ctx context.Context, token, owner, repo, path string) (*FileContent, error) {
	ctx, span := tracer.Start(ctx, "github.proxy_file",
		trace.WithAttributes(
			attribute.String("repo", owner+"/"+repo),
			attribute.String("file.path", path),
		))
	defer span.End()

	key := fmt.Sprintf("file:%s/%s:%s", owner, repo, path)
	v, err := p.cache.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return p.client.GetFile(ctx, token, owner, repo, path)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*FileContent), nil
}

// Commits returns one page of the repository's commit history.
func (p *Proxy) Commits(ctx context.Context, token, owner, repo string, page, perPage int) ([]Commit, error) {
	ctx, span := tracer.Start(ctx, "github.proxy_commits",
		trace.WithAttributes(attribute.String("repo", owner+"/"+repo)))
	defer span.End()

	key := fmt.Sprintf("commits:%s/%s:%d:%d", owner, repo, page, perPage)
	v, err := p.cache.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return p.client.ListCommits(ctx, token, owner, repo, page, perPage)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.([]Commit), nil
}

// SweepCache removes expired cache entries.
func (p *Proxy) SweepCache() int {
	return p.cache.Sweep()
}
