package hubspot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/models"
)

const (
	pageSize = 100

	// DefaultMaxProperties is the per-request property cap of the search endpoint.
	DefaultMaxProperties = 100

	lastModifiedProperty = "lastmodifieddate"
	sortProperty         = "hs_object_id"
)

// Fetcher pages through one CRM entity.
type Fetcher struct {
	client        *Client
	entity        string
	maxProperties int
	logger        *zap.Logger
}

// NewFetcher creates a fetcher for entity. maxProperties <= 0 selects DefaultMaxProperties.
func NewFetcher(client *Client, entity string, maxProperties int, logger *zap.Logger) *Fetcher {
	if maxProperties <= 0 {
		maxProperties = DefaultMaxProperties
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, entity: entity, maxProperties: maxProperties, logger: logger}
}

// FetchProperties returns every non-archived property definition of the entity.
func (f *Fetcher) FetchProperties(ctx context.Context) ([]models.PropertyDefinition, error) {
	var (
		props []models.PropertyDefinition
		after string
		seen  = make(map[string]bool)
	)
	for {
		page, err := f.client.ListProperties(ctx, f.entity, after)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Results {
			if p.Archived {
				continue
			}
			props = append(props, models.PropertyDefinition{
				Name: p.Name,
				Type: models.ParsePropertyType(p.Type),
			})
		}

		next := page.Paging.NextAfter()
		if next == "" {
			break
		}
		if seen[next] {
			return nil, fmt.Errorf("list properties: cursor %q repeated", next)
		}
		seen[next] = true
		after = next
	}

	f.logger.Info("fetched property catalogue",
		zap.String("entity", f.entity),
		zap.Int("properties", len(props)))
	return props, nil
}

// FetchModifiedSince returns every record modified strictly after since, with
// the requested properties. Property lists over the per-request cap are split
// into chunks; each chunk is swept on its own cursor and the partial records
// are merged by id. Records missing from some chunk are held back.
func (f *Fetcher) FetchModifiedSince(ctx context.Context, props []string, since time.Time) ([]models.Record, error) {
	chunks := Chunk(props, f.maxProperties)
	parts := make([][]models.Record, 0, len(chunks))

	for i, chunk := range chunks {
		records, err := f.sweep(ctx, chunk, since)
		if err != nil {
			return nil, fmt.Errorf("property chunk %d/%d: %w", i+1, len(chunks), err)
		}
		f.logger.Debug("swept property chunk",
			zap.Int("chunk", i+1),
			zap.Int("chunks", len(chunks)),
			zap.Int("properties", len(chunk)),
			zap.Int("records", len(records)))
		parts = append(parts, records)
	}

	records, held := mergeComplete(parts)
	if len(held) > 0 {
		f.logger.Warn("holding back records changed during the sweep",
			zap.String("entity", f.entity),
			zap.Int("held", len(held)),
			zap.Strings("ids", held))
	}
	f.logger.Info("fetched modified records",
		zap.String("entity", f.entity),
		zap.Time("since", since),
		zap.Int("chunks", len(chunks)),
		zap.Int("records", len(records)))
	return records, nil
}

// mergeComplete merges chunk results by id and drops ids absent from any chunk.
// Such an object was modified while the chunks were being swept, so it is past
// the run's watermark and the next run fetches it whole. Merging a partial
// record would overwrite the missing columns with NULL.
func mergeComplete(parts [][]models.Record) ([]models.Record, []string) {
	merged := models.MergeRecords(parts...)
	if len(parts) < 2 {
		return merged, nil
	}

	counts := make(map[string]int, len(merged))
	for _, part := range parts {
		seen := make(map[string]bool, len(part))
		for _, rec := range part {
			if rec.ID == "" || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			counts[rec.ID]++
		}
	}

	kept := make([]models.Record, 0, len(merged))
	var held []string
	for _, rec := range merged {
		if counts[rec.ID] == len(parts) {
			kept = append(kept, rec)
		} else {
			held = append(held, rec.ID)
		}
	}
	return kept, held
}

func (f *Fetcher) sweep(ctx context.Context, props []string, since time.Time) ([]models.Record, error) {
	req := SearchRequest{
		FilterGroups: []FilterGroup{{Filters: []Filter{{
			PropertyName: lastModifiedProperty,
			Operator:     "GT",
			Value:        strconv.FormatInt(since.UnixMilli(), 10),
		}}}},
		Sorts:      []Sort{{PropertyName: sortProperty, Direction: "ASCENDING"}},
		Properties: props,
		Limit:      pageSize,
	}

	var records []models.Record
	seen := make(map[string]bool)
	for {
		page, err := f.client.Search(ctx, f.entity, req)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Results {
			records = append(records, toRecord(obj))
		}

		next := page.Paging.NextAfter()
		if next == "" {
			return records, nil
		}
		if seen[next] {
			return nil, fmt.Errorf("search %s: cursor %q repeated", f.entity, next)
		}
		seen[next] = true
		req.After = next
	}
}

// FetchLiveIDs lists the id of every non-archived object, unfiltered.
func (f *Fetcher) FetchLiveIDs(ctx context.Context) ([]string, error) {
	return f.listIDs(ctx, false)
}

// FetchArchivedIDs lists the id of every archived object.
func (f *Fetcher) FetchArchivedIDs(ctx context.Context) ([]string, error) {
	return f.listIDs(ctx, true)
}

func (f *Fetcher) listIDs(ctx context.Context, archived bool) ([]string, error) {
	var (
		ids   []string
		after string
		seen  = make(map[string]bool)
	)
	for {
		page, err := f.client.ListObjects(ctx, f.entity, archived, pageSize, after)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Results {
			if obj.ID != "" {
				ids = append(ids, obj.ID)
			}
		}

		next := page.Paging.NextAfter()
		if next == "" {
			break
		}
		if seen[next] {
			return nil, fmt.Errorf("list %s: cursor %q repeated", f.entity, next)
		}
		seen[next] = true
		after = next
	}

	f.logger.Info("listed object ids",
		zap.String("entity", f.entity),
		zap.Bool("archived", archived),
		zap.Int("ids", len(ids)))
	return ids, nil
}

// Chunk splits props into consecutive slices of at most size entries.
// An empty list yields one empty chunk so a sweep still returns ids.
func Chunk(props []string, size int) [][]string {
	if len(props) == 0 {
		return [][]string{nil}
	}
	if size <= 0 || len(props) <= size {
		return [][]string{props}
	}
	chunks := make([][]string, 0, (len(props)+size-1)/size)
	for start := 0; start < len(props); start += size {
		end := start + size
		if end > len(props) {
			end = len(props)
		}
		chunks = append(chunks, props[start:end])
	}
	return chunks
}

func toRecord(obj Object) models.Record {
	props := make(map[string]any, len(obj.Properties))
	for k, v := range obj.Properties {
		props[k] = v
	}
	return models.Record{ID: obj.ID, Properties: props}
}
