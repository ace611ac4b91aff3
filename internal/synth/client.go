package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/types"
	"github.com/okian/teamelo/pkg/logger"
)

// Submission results.
const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
)

const (
	workerChannelMultiplier = 2
	progressInterval        = time.Second
)

// Client talks to a running teamelo HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// gamePayload is the POST /games body.
type gamePayload struct {
	GameID  int64         `json:"game_id"`
	Team1   []string      `json:"team1"`
	Team2   []string      `json:"team2"`
	Outcome model.Outcome `json:"outcome"`
}

type gameAck struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// PostGame submits one game and reports whether it was applied or a duplicate.
// A game queued by the server counts as applied.
func (c *Client) PostGame(ctx context.Context, g model.Game) (string, error) {
	body, err := json.Marshal(gamePayload{
		GameID:  g.ID(),
		Team1:   g.Team1(),
		Team2:   g.Team2(),
		Outcome: g.Outcome(),
	})
	if err != nil {
		return resultFailed, fmt.Errorf("failed to marshal game %d: %w", g.ID(), err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/games", body)
	if err != nil {
		return resultFailed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return resultFailed, fmt.Errorf("%w: game %d: %d %s", ErrUnexpectedCode, g.ID(), resp.StatusCode, bytes.TrimSpace(msg))
	}
	var ack gameAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return resultFailed, fmt.Errorf("failed to decode ack for game %d: %w", g.ID(), err)
	}
	if ack.Duplicate {
		return resultDuplicate, nil
	}
	return resultApplied, nil
}

// Standings fetches GET /ratings?limit=n.
func (c *Client) Standings(ctx context.Context, limit int) ([]types.Entry, error) {
	q := url.Values{"limit": []string{strconv.Itoa(limit)}}
	resp, err := c.do(ctx, http.MethodGet, "/ratings?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: standings: %d", ErrUnexpectedCode, resp.StatusCode)
	}
	var entries []types.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode standings: %w", err)
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// SubmitStats counts submission results.
type SubmitStats struct {
	Submitted  int64
	Applied    int64
	Duplicates int64
	Failed     int64
}

// Submit posts games with a pool of workers. With one worker the games arrive
// in slice order; with more, arrival order and therefore the final ratings
// vary between runs.
func Submit(ctx context.Context, c *Client, games []model.Game, workers int, verbose bool) (SubmitStats, error) {
	if workers < 1 {
		workers = 1
	}
	log := logger.Get()
	log.Info(ctx, "submitting games", logger.Int("games", len(games)), logger.Int("workers", workers))

	var (
		submitted, applied, duplicates, failed atomic.Int64
		lastReport                             atomic.Int64
	)

	gameChan := make(chan model.Game, workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range gameChan {
				if ctx.Err() != nil {
					continue
				}
				result, err := c.PostGame(ctx, g)
				submitted.Add(1)
				switch result {
				case resultApplied:
					applied.Add(1)
				case resultDuplicate:
					duplicates.Add(1)
				default:
					failed.Add(1)
					if verbose {
						log.Warn(ctx, "game submission failed", logger.Error(err))
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "submission progress",
						logger.Any("submitted", submitted.Load()),
						logger.Int("total", len(games)),
						logger.Any("failed", failed.Load()),
					)
				}
			}
		}()
	}

	go func() {
		defer close(gameChan)
		for _, g := range games {
			select {
			case <-ctx.Done():
				return
			case gameChan <- g:
			}
		}
	}()

	wg.Wait()

	stats := SubmitStats{
		Submitted:  submitted.Load(),
		Applied:    applied.Load(),
		Duplicates: duplicates.Load(),
		Failed:     failed.Load(),
	}
	log.Info(ctx, "game submission completed",
		logger.Any("applied", stats.Applied),
		logger.Any("duplicates", stats.Duplicates),
		logger.Any("failed", stats.Failed),
	)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("submission cancelled: %w", err)
	}
	return stats, nil
}
