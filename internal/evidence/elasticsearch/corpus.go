// Package elasticsearch is an evidence.Corpus backed by a news index.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/evidence"
)

// Config configures the corpus.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Index     string
	// Timeout is the server-side search timeout.
	Timeout time.Duration
	// Oversample multiplies the requested limit, since the gatherer's
	// keyword filter is stricter than full-text relevance.
	Oversample int
}

// Corpus searches news articles stored in Elasticsearch. Documents carry
// title, summary, source, url and published_at fields.
type Corpus struct {
	client *es.Client
	cfg    Config
}

var _ evidence.Corpus = (*Corpus)(nil)

// New creates a corpus from configuration.
func New(cfg Config) (*Corpus, error) {
	addresses := make([]string, 0, len(cfg.Addresses))
	for _, a := range cfg.Addresses {
		if !strings.HasPrefix(a, "http://") && !strings.HasPrefix(a, "https://") {
			a = "http://" + a
		}
		addresses = append(addresses, a)
	}
	client, err := es.NewClient(es.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, errors.NewConfigError("elasticsearch", "failed to create client", err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *es.Client, cfg Config) *Corpus {
	if cfg.Index == "" {
		cfg.Index = "news"
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = 3
	}
	return &Corpus{client: client, cfg: cfg}
}

type article struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Source article `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search implements evidence.Corpus.
func (c *Corpus) Search(ctx context.Context, q evidence.Query) ([]evidence.Item, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(c.buildQuery(q)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	opts := []func(*esapi.SearchRequest){
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.cfg.Index),
		c.client.Search.WithBody(&buf),
		c.client.Search.WithTrackTotalHits(false),
	}
	if c.cfg.Timeout > 0 {
		opts = append(opts, c.client.Search.WithTimeout(c.cfg.Timeout))
	}

	res, err := c.client.Search(opts...)
	if err != nil {
		return nil, errors.WrapAPI("elasticsearch", 0, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, errors.NewAPIError("elasticsearch", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.WrapParse("json", "", err)
	}

	items := make([]evidence.Item, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		items = append(items, evidence.Item{
			Title:       h.Source.Title,
			Summary:     h.Source.Summary,
			Source:      h.Source.Source,
			URL:         h.Source.URL,
			PublishedAt: h.Source.PublishedAt,
		})
	}
	return items, nil
}

func (c *Corpus) buildQuery(q evidence.Query) map[string]any {
	size := q.Limit * c.cfg.Oversample
	if size <= 0 {
		size = 60
	}

	boolQuery := map[string]any{
		"filter": []any{
			map[string]any{"range": map[string]any{
				"published_at": map[string]any{
					"gte": q.From.UTC().Format(time.RFC3339),
					"lte": q.To.UTC().Format(time.RFC3339),
				},
			}},
		},
	}
	if len(q.Keywords) > 0 {
		should := make([]any, 0, len(q.Keywords))
		for _, kw := range q.Keywords {
			if strings.TrimSpace(kw) == "" {
				continue
			}
			should = append(should, map[string]any{"multi_match": map[string]any{
				"query":  kw,
				"fields": []string{"title", "summary"},
				"type":   "phrase",
			}})
		}
		if len(should) > 0 {
			boolQuery["should"] = should
			boolQuery["minimum_should_match"] = 1
		}
	}

	return map[string]any{
		"size":  size,
		"query": map[string]any{"bool": boolQuery},
		"sort": []any{
			map[string]any{"published_at": map[string]any{"order": "desc"}},
		},
	}
}
