package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"truefantix/internal/config"
	"truefantix/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// TicketDocument - проекция билета в поисковом индексе
type TicketDocument struct {
	ID                 string    `json:"id"`
	SellerID           string    `json:"sellerId"`
	EventID            string    `json:"eventId,omitempty"`
	Title              string    `json:"title"`
	Venue              string    `json:"venue"`
	Date               string    `json:"date"`
	PriceCents         int64     `json:"priceCents"`
	Status             string    `json:"status"`
	VerificationStatus string    `json:"verificationStatus"`
	CreatedAt          time.Time `json:"createdAt"`
}

func NewTicketDocument(t *models.Ticket) TicketDocument {
	doc := TicketDocument{
		ID:                 t.ID,
		SellerID:           t.SellerID,
		Title:              t.Title,
		Venue:              t.Venue,
		Date:               t.Date,
		PriceCents:         t.PriceCents,
		Status:             t.Status,
		VerificationStatus: t.VerificationStatus,
		CreatedAt:          t.CreatedAt,
	}
	if t.EventID != nil {
		doc.EventID = *t.EventID
	}
	return doc
}

// TicketIndex - полнотекстовый поиск по листингам
type TicketIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewTicketIndex создает клиент Elasticsearch и индекс, если его нет
func NewTicketIndex(cfg config.ElasticsearchConfig) (*TicketIndex, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	idx := newTicketIndex(es, cfg.Index)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return idx, nil
}

func newTicketIndex(client *elasticsearch.Client, index string) *TicketIndex {
	return &TicketIndex{client: client, index: index}
}

func (c *TicketIndex) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{c.index}}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.index)
		return nil
	}

	keyword := map[string]any{"type": "keyword"}
	mapping := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":       keyword,
				"sellerId": keyword,
				"eventId":  keyword,
				"title": map[string]any{
					"type":     "text",
					"analyzer": "english",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"venue":              map[string]any{"type": "text", "analyzer": "english"},
				"date":               keyword,
				"priceCents":         map[string]any{"type": "long"},
				"status":             keyword,
				"verificationStatus": keyword,
				"createdAt":          map[string]any{"type": "date"},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createRes, err := esapi.IndicesCreateRequest{Index: c.index, Body: bytes.NewReader(body)}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.index)
	return nil
}

// IndexTicket записывает документ билета, перезаписывая предыдущую версию
func (c *TicketIndex) IndexTicket(ctx context.Context, t *models.Ticket) error {
	body, err := json.Marshal(NewTicketDocument(t))
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: t.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index ticket: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}
	return nil
}

func (c *TicketIndex) DeleteTicket(ctx context.Context, id string) error {
	res, err := esapi.DeleteRequest{
		Index:      c.index,
		DocumentID: id,
		Refresh:    "wait_for",
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete error: %s", res.String())
	}
	return nil
}

// buildSearchQuery - multi_match по title/venue среди проверенных доступных билетов
func buildSearchQuery(query string, limit int) map[string]any {
	return map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"title^2", "venue"},
						"fuzziness": "AUTO",
					},
				}},
				"filter": []map[string]any{
					{"term": map[string]any{"status": models.TicketAvailable}},
					{"term": map[string]any{"verificationStatus": models.VerificationVerified}},
				},
			},
		},
		"sort": []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"createdAt": map[string]any{"order": "desc"}},
		},
		"_source": []string{"id"},
	}
}

// Search возвращает id билетов в порядке релевантности
func (c *TicketIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 24
	}

	body, err := json.Marshal(buildSearchQuery(query, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]string, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// HealthCheck проверяет состояние Elasticsearch
func (c *TicketIndex) HealthCheck(ctx context.Context) error {
	res, err := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}
	return nil
}
