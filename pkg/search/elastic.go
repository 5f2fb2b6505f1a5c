// Package search keeps a full-text index of documents in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Document is the indexed projection of any document kind.
type Document struct {
	Kind       string    `json:"kind"`
	DocumentID uint      `json:"document_id"`
	Number     string    `json:"number,omitempty"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	Party      string    `json:"party,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key is the index document id.
func (d Document) Key() string {
	return Key(d.Kind, d.DocumentID)
}

func Key(kind string, id uint) string {
	return fmt.Sprintf("%s-%d", kind, id)
}

// Query is a free-text lookup optionally narrowed to some kinds.
type Query struct {
	Text  string
	Kinds []string
	Limit int
}

type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// Client wraps the Elasticsearch API for one index
type Client struct {
	es    *elasticsearch.Client
	index string
}

func NewClient(cfg Config) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = "documents"
	}
	return &Client{es: es, index: index}, nil
}

func (c *Client) Put(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode search document: %w", err)
	}
	res, err := c.es.Index(c.index, bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.Key()),
	)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.Key(), err)
	}
	return checkResponse(res, "index")
}

func (c *Client) Delete(ctx context.Context, kind string, id uint) error {
	res, err := c.es.Delete(c.index, Key(kind, id), c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", Key(kind, id), err)
	}
	if res.StatusCode == 404 {
		res.Body.Close()
		return nil
	}
	return checkResponse(res, "delete")
}

func (c *Client) Search(ctx context.Context, q Query) ([]Document, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(res, "search")
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}

func buildQuery(q Query) map[string]any {
	must := []any{
		map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"title^3", "number^2", "summary", "party"},
			},
		},
	}
	boolQuery := map[string]any{"must": must}
	if len(q.Kinds) > 0 {
		boolQuery["filter"] = []any{
			map[string]any{"terms": map[string]any{"kind": q.Kinds}},
		}
	}
	return map[string]any{"query": map[string]any{"bool": boolQuery}}
}

func checkResponse(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res, op)
	}
	return nil
}

func responseError(res *esapi.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("elasticsearch %s failed: %s %s", op, res.Status(), strings.TrimSpace(string(msg)))
}
