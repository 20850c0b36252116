// Package ingest implements the Ingester (spec.md §1's component table,
// row M): pulls remote messages in pages, batch-fetches their detail, and
// upserts them into the user's Store. Grounded on the bounded worker-pool
// shape of niraj8-things/email/internal/gmail/fetch.go's FetchGroups,
// generalized from per-message metadata aggregation onto batch-fetch +
// upsert, and on cmd/email-retrieval's own batch-processing loop for the
// page/drain/wait control flow.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/ports"
	"github.com/mailsentinel/core/internal/store"
)

// defaultPageSize mirrors cmd/email-retrieval's own ListPage call size.
const defaultPageSize = 500

// defaultBatchSize is GetBatch's per-call id count; the remote provider's
// own batch endpoints cap this far lower than a full page.
const defaultBatchSize = 50

// defaultWorkerCount bounds concurrent GetBatch calls in flight.
const defaultWorkerCount = 8

// Options configures one IngestEmails run.
type Options struct {
	Query      string // provider query string; "" pulls everything
	MaxResults int    // 0 means no cap, page until exhausted
}

// Result summarizes one ingest run.
type Result struct {
	Listed   int
	Fetched  int
	Upserted int
	Errors   []string
}

// Ingester pulls and indexes one user's remote mailbox.
type Ingester struct {
	Remote      ports.RemoteMailClient
	Store       *store.Store
	WorkerCount int
	BatchSize   int
	Log         zerolog.Logger
}

// New builds an Ingester with cmd/email-retrieval's default pool sizing.
func New(remote ports.RemoteMailClient, s *store.Store, log zerolog.Logger) *Ingester {
	return &Ingester{
		Remote:      remote,
		Store:       s,
		WorkerCount: defaultWorkerCount,
		BatchSize:   defaultBatchSize,
		Log:         log.With().Str("component", "ingester").Logger(),
	}
}

// IngestEmails pages through the remote mailbox, batch-fetches message
// detail across a bounded worker pool, and upserts every fetched message
// into userID's Store. A page-list error ends the run and is returned; a
// fetch or upsert error for one batch is recorded in Result.Errors and the
// run continues.
func (ing *Ingester) IngestEmails(ctx context.Context, userID string, opts Options) (Result, error) {
	workers := ing.WorkerCount
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	batchSize := ing.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	jobs := make(chan []string, workers*2)
	type batchResult struct {
		messages []ports.RemoteMessage
		err      error
	}
	results := make(chan batchResult, workers*2)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for ids := range jobs {
				msgs, err := ing.Remote.GetBatch(ctx, ids)
				select {
				case results <- batchResult{messages: msgs, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	result := Result{}
	var collectWG sync.WaitGroup
	var mu sync.Mutex
	collectWG.Add(1)
	go func() {
		defer collectWG.Done()
		for r := range results {
			if r.err != nil {
				mu.Lock()
				result.Errors = append(result.Errors, fmt.Sprintf("batch fetch failed: %v", r.err))
				mu.Unlock()
				continue
			}
			mu.Lock()
			result.Fetched += len(r.messages)
			mu.Unlock()

			emails := make([]domain.EmailIndex, 0, len(r.messages))
			for _, m := range r.messages {
				emails = append(emails, toEmailIndex(m, userID))
			}
			n, err := ing.Store.BulkUpsertEmailIndex(ctx, emails)
			mu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("upsert failed: %v", err))
			} else {
				result.Upserted += int(n)
			}
			mu.Unlock()
		}
	}()

	pageToken := ""
	listed := 0
pageLoop:
	for {
		select {
		case <-ctx.Done():
			break pageLoop
		default:
		}

		page, err := ing.Remote.ListPage(ctx, opts.Query, pageToken, defaultPageSize)
		if err != nil {
			close(jobs)
			wg.Wait()
			close(results)
			collectWG.Wait()
			return result, fmt.Errorf("ingest: list page: %w", err)
		}

		ids := page.MessageIDs
		if opts.MaxResults > 0 && listed+len(ids) > opts.MaxResults {
			ids = ids[:opts.MaxResults-listed]
		}
		listed += len(ids)

		for i := 0; i < len(ids); i += batchSize {
			end := i + batchSize
			if end > len(ids) {
				end = len(ids)
			}
			select {
			case jobs <- ids[i:end]:
			case <-ctx.Done():
				break pageLoop
			}
		}

		if page.NextPageToken == "" || (opts.MaxResults > 0 && listed >= opts.MaxResults) {
			break
		}
		pageToken = page.NextPageToken
	}

	close(jobs)
	wg.Wait()
	close(results)
	collectWG.Wait()

	result.Listed = listed
	ing.Log.Info().Int("listed", result.Listed).Int("fetched", result.Fetched).Int("upserted", result.Upserted).Msg("ingest run complete")
	return result, ctx.Err()
}

func yearFromEpochMillis(ms int64) int {
	return time.UnixMilli(ms).UTC().Year()
}

func toEmailIndex(m ports.RemoteMessage, userID string) domain.EmailIndex {
	year := 0
	if m.Date > 0 {
		year = yearFromEpochMillis(m.Date)
	}
	return domain.EmailIndex{
		ID:             m.ID,
		ThreadID:       m.ThreadID,
		UserID:         userID,
		Subject:        m.Subject,
		Sender:         m.Sender,
		Recipients:     m.Recipients,
		Date:           m.Date,
		Year:           year,
		Size:           m.Size,
		HasAttachments: m.HasAttachments,
		Labels:         m.Labels,
		Snippet:        m.Snippet,
	}
}
