package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"meshmap/internal/config"
	"meshmap/internal/domain"
)

// TailnetSource polls the mesh control-plane API for the device
// directory, the service and DNS-record maps, and the network-flow logs
// of a trailing window. All four fetches run concurrently per sync and
// share one rate limiter.
type TailnetSource struct {
	cfg     config.TailnetConfig
	client  *http.Client
	limiter *rate.Limiter
	sink    SinkFunc
	setDir  DirectoryFunc
	log     *zap.Logger
	key     string
}

// NewTailnet creates the control-plane polling source
func NewTailnet(cfg config.TailnetConfig, sink SinkFunc, setDir DirectoryFunc, log *zap.Logger) *TailnetSource {
	if log == nil {
		log = zap.NewNop()
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	return &TailnetSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		sink:    sink,
		setDir:  setDir,
		log:     log.Named("tailnet"),
	}
}

// Name implements Source
func (s *TailnetSource) Name() string { return "tailnet" }

// Type implements Source
func (s *TailnetSource) Type() Type { return TypePolling }

// Start resolves the API key once so a missing credential fails at
// startup rather than on the first poll
func (s *TailnetSource) Start(ctx context.Context) error {
	key, err := s.cfg.APIKey()
	if err != nil {
		return fmt.Errorf("tailnet source: %w", err)
	}
	s.key = key
	return nil
}

// Stop implements Source
func (s *TailnetSource) Stop() error { return nil }

// addrEntry is the wire shape of one lookup-table value
type addrEntry struct {
	Addrs []string `json:"addrs"`
}

// Sync fetches the directory and the flow logs for the trailing window.
// Delivery is all-or-nothing: when any fetch fails, nothing reaches the
// pipeline and the previous state stands.
func (s *TailnetSource) Sync(ctx context.Context) error {
	window := s.cfg.Window.Duration()
	if window <= 0 {
		window = 5 * time.Minute
	}
	end := time.Now().UTC()
	start := end.Add(-window)

	var (
		devices struct {
			Devices []domain.Device `json:"devices"`
		}
		services struct {
			Services map[string]addrEntry `json:"services"`
		}
		records struct {
			Records map[string]addrEntry `json:"records"`
		}
		logs struct {
			Logs []domain.NetworkLog `json:"logs"`
		}
	)

	logQuery := url.Values{}
	logQuery.Set("start", start.Format(time.RFC3339))
	logQuery.Set("end", end.Format(time.RFC3339))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.fetch(ctx, "devices", nil, &devices) })
	g.Go(func() error { return s.fetch(ctx, "services", nil, &services) })
	g.Go(func() error { return s.fetch(ctx, "dns/records", nil, &records) })
	g.Go(func() error { return s.fetch(ctx, "network-logs", logQuery, &logs) })
	if err := g.Wait(); err != nil {
		return err
	}

	dir := domain.NewDirectory()
	dir.Devices = devices.Devices
	for name, entry := range services.Services {
		dir.Services[name] = entry.Addrs
	}
	for name, entry := range records.Records {
		dir.Records[name] = entry.Addrs
	}
	if s.setDir != nil {
		s.setDir(ctx, dir)
	}

	batch := domain.LogBatch{Source: s.Name(), Start: start, End: end}
	for i := range logs.Logs {
		l := &logs.Logs[i]
		batch.Merge(domain.LogBatch{Start: l.Start, End: l.End, Records: l.Flatten()})
	}
	if s.sink != nil {
		s.sink(batch)
	}

	s.log.Debug("tailnet sync complete",
		zap.Int("devices", len(dir.Devices)),
		zap.Int("logs", len(logs.Logs)),
		zap.Int("records", len(batch.Records)),
	)
	return nil
}

// fetch performs one rate-limited GET against the control-plane API
func (s *TailnetSource) fetch(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/api/v2/tailnet/%s/%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.Tailnet), endpoint)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}
