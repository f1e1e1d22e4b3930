package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/railboard/railboard_core/internal/cache"
	"github.com/railboard/railboard_core/internal/models"
	"github.com/railboard/railboard_core/internal/source"
	"github.com/railboard/railboard_core/internal/stations"
)

const (
	minRows = 1
	maxRows = 50
)

// ErrorCode classifies aggregation failures for callers
type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	CodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	CodeInternal          ErrorCode = "INTERNAL"
)

// Error is a typed aggregation failure
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is an aggregation *Error with the given code
func IsCode(err error, code ErrorCode) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// Config tunes the aggregator
type Config struct {
	// CacheTTL is how long an assembled board stays valid (default 30s)
	CacheTTL time.Duration
	// AdapterTimeout bounds each individual adapter call (default 5s)
	AdapterTimeout time.Duration
}

// Aggregator produces one StationBoard per request by fanning out to the
// configured adapters, applying the darwin > rtt > legacy fallback order,
// merging overlapping records and scoring the result. It owns the
// process-wide last-request diagnostics snapshot.
type Aggregator struct {
	primary  source.Adapter
	enhanced source.Adapter
	legacy   source.Adapter
	store    cache.Store
	dir      *stations.Directory
	cfg      Config

	diagMu   sync.Mutex
	lastDiag *models.RequestDiagnostics
}

// New builds an aggregator. Any adapter and the store and directory may
// be nil; missing collaborators degrade per the fallback policy instead
// of failing construction.
func New(primary, enhanced, legacy source.Adapter, store cache.Store, dir *stations.Directory, cfg Config) *Aggregator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 5 * time.Second
	}
	return &Aggregator{
		primary:  primary,
		enhanced: enhanced,
		legacy:   legacy,
		store:    store,
		dir:      dir,
		cfg:      cfg,
	}
}

// fetchResult is one settled adapter call
type fetchResult struct {
	name  string
	board *models.StationBoard
	err   error
}

// Departures assembles the board for one request. The caller receives
// either a complete board (possibly with reduced completeness and failed
// sources listed) or a typed error; failed live sources are never masked
// with fabricated data.
func (a *Aggregator) Departures(ctx context.Context, req models.BoardRequest) (*models.StationBoard, error) {
	norm, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	diag := &models.RequestDiagnostics{
		StationCode: norm.StationCode,
		StartedAt:   time.Now().UTC(),
		Sources:     make(map[string]models.SourceDiagnostics),
	}

	key := cache.BoardKey(norm)
	if cached := a.cacheLookup(ctx, key); cached != nil {
		cached.Cached = true
		diag.CacheHit = true
		diag.CompletedAt = time.Now().UTC()
		a.publishDiagnostics(diag)
		return cached, nil
	}

	results := a.fanOut(ctx, norm)

	// fallback tier: only when neither darwin nor rtt produced a board
	if !anySuccess(results) && a.legacy != nil {
		results = append(results, a.callAdapter(ctx, a.legacy, norm))
	}

	board, aggErr := a.assemble(norm, results, diag)
	diag.CompletedAt = time.Now().UTC()
	a.publishDiagnostics(diag)

	if aggErr != nil {
		log.Printf("aggregation failed for %s (rows=%d, attempted=%s): %v",
			norm.StationCode, norm.NumRows, attemptedNames(results), aggErr)
		return nil, aggErr
	}

	a.cacheStore(ctx, key, board)
	return board, nil
}

// LastDiagnostics returns a copy of the most recent aggregation snapshot,
// or nil when no aggregation has run in this process.
func (a *Aggregator) LastDiagnostics() *models.RequestDiagnostics {
	a.diagMu.Lock()
	defer a.diagMu.Unlock()
	if a.lastDiag == nil {
		return nil
	}
	cp := *a.lastDiag
	cp.Sources = make(map[string]models.SourceDiagnostics, len(a.lastDiag.Sources))
	for k, v := range a.lastDiag.Sources {
		cp.Sources[k] = v
	}
	return &cp
}

func (a *Aggregator) publishDiagnostics(diag *models.RequestDiagnostics) {
	a.diagMu.Lock()
	a.lastDiag = diag
	a.diagMu.Unlock()
}

// normalizeRequest validates and canonicalizes the request tuple. Caller
// errors are rejected here, before any adapter or cache access.
func normalizeRequest(req models.BoardRequest) (models.BoardRequest, *Error) {
	req.StationCode = strings.ToUpper(strings.TrimSpace(req.StationCode))
	if !validCRS(req.StationCode) {
		return req, &Error{Code: CodeInvalidRequest, Message: "station code must be exactly 3 letters"}
	}

	if req.NumRows < minRows {
		req.NumRows = minRows
	}
	if req.NumRows > maxRows {
		req.NumRows = maxRows
	}

	req.FilterCode = strings.ToUpper(strings.TrimSpace(req.FilterCode))
	if req.FilterCode != "" {
		if !validCRS(req.FilterCode) {
			return req, &Error{Code: CodeInvalidRequest, Message: "filter code must be exactly 3 letters"}
		}
		if req.FilterDirection != models.FilterTo && req.FilterDirection != models.FilterFrom {
			return req, &Error{Code: CodeInvalidRequest, Message: `filter direction must be "to" or "from"`}
		}
	}
	return req, nil
}

func validCRS(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// fanOut issues the primary call and, when requested, the enhanced call
// concurrently. Each call carries its own timeout; a slow adapter never
// delays the others' results beyond its own deadline. Results come back
// in fixed priority order regardless of completion order.
func (a *Aggregator) fanOut(ctx context.Context, req models.BoardRequest) []fetchResult {
	adapters := make([]source.Adapter, 0, 2)
	if a.primary != nil {
		adapters = append(adapters, a.primary)
	}
	if req.IncludeEnhanced && a.enhanced != nil {
		adapters = append(adapters, a.enhanced)
	}

	results := make([]fetchResult, len(adapters))
	var wg sync.WaitGroup
	for i, ad := range adapters {
		wg.Add(1)
		go func(slot int, ad source.Adapter) {
			defer wg.Done()
			results[slot] = a.callAdapter(ctx, ad, req)
		}(i, ad)
	}
	wg.Wait()
	return results
}

// callAdapter runs one adapter call with its own deadline, converting
// panics-free failures into captured results. At most once per request;
// retries are an adapter-internal concern.
func (a *Aggregator) callAdapter(ctx context.Context, ad source.Adapter, req models.BoardRequest) fetchResult {
	if !ad.Enabled() {
		return fetchResult{
			name: ad.Name(),
			err:  source.NewError(ad.Name(), source.CodeNotEnabled, "adapter not configured"),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
	defer cancel()

	board, err := ad.FetchBoard(callCtx, req)
	if err != nil {
		return fetchResult{name: ad.Name(), err: err}
	}
	if board == nil {
		return fetchResult{
			name: ad.Name(),
			err:  source.NewError(ad.Name(), source.CodeInvalidResponse, "adapter returned no board"),
		}
	}
	return fetchResult{name: ad.Name(), board: board}
}

// assemble merges settled results into the final board and fills the
// diagnostics record.
func (a *Aggregator) assemble(req models.BoardRequest, results []fetchResult, diag *models.RequestDiagnostics) (*models.StationBoard, *Error) {
	var successes []fetchResult
	var failed []string

	for _, res := range results {
		sd := models.SourceDiagnostics{Attempted: true}
		if res.err != nil {
			sd.Error = res.err.Error()
			failed = append(failed, res.name)
		}
		diag.Sources[res.name] = sd

		if res.err == nil {
			successes = append(successes, res)
		}
	}

	if len(successes) == 0 {
		return nil, &Error{
			Code:    CodeSourceUnavailable,
			Message: "no upstream source produced a board for " + req.StationCode,
		}
	}

	primary := successes[0]
	merged, conflicts, contributed := mergeBoards(primary.board, successes[1:])

	sort.SliceStable(merged.Departures, func(i, j int) bool {
		return merged.Departures[i].ScheduledTime.Before(merged.Departures[j].ScheduledTime)
	})
	if len(merged.Departures) > req.NumRows {
		merged.Departures = merged.Departures[:req.NumRows]
	}

	// diagnostics: the authoritative source is available, contributors
	// are enhanced
	sd := diag.Sources[primary.name]
	sd.Available = true
	diag.Sources[primary.name] = sd
	for _, name := range contributed {
		sd := diag.Sources[name]
		sd.Enhanced = true
		diag.Sources[name] = sd
	}

	merged.StationCode = req.StationCode
	if merged.StationName == "" {
		merged.StationName = a.dir.Name(req.StationCode)
	}
	merged.GeneratedAt = time.Now().UTC()
	merged.DataSources = models.DataSources{
		Primary:  primary.name,
		Enhanced: contributed,
		Failed:   normalizeNames(failed),
	}
	merged.DataQuality = models.DataQuality{
		Completeness:     completeness(len(merged.Departures), req.NumRows),
		FreshnessSeconds: freshness(successes, merged.GeneratedAt),
		ConflictCount:    conflicts,
	}
	return merged, nil
}

func completeness(returned, requested int) float64 {
	if requested <= 0 {
		return 0
	}
	c := float64(returned) / float64(requested)
	if c > 1 {
		c = 1
	}
	return c
}

// freshness is the age of the most recently updated contributing source
func freshness(successes []fetchResult, now time.Time) float64 {
	var newest time.Time
	for _, res := range successes {
		if res.board.SourceTime.After(newest) {
			newest = res.board.SourceTime
		}
	}
	if newest.IsZero() {
		return 0
	}
	age := now.Sub(newest).Seconds()
	if age < 0 {
		age = 0
	}
	return age
}

func (a *Aggregator) cacheLookup(ctx context.Context, key string) *models.StationBoard {
	if a.store == nil {
		return nil
	}
	data, ok, err := a.store.Get(ctx, key)
	if err != nil {
		log.Printf("cache get %s failed: %v", key, err)
		return nil
	}
	if !ok {
		return nil
	}
	var board models.StationBoard
	if err := json.Unmarshal(data, &board); err != nil {
		log.Printf("cache entry %s corrupt, dropping: %v", key, err)
		a.store.Delete(ctx, key)
		return nil
	}
	return &board
}

func (a *Aggregator) cacheStore(ctx context.Context, key string, board *models.StationBoard) {
	if a.store == nil {
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		log.Printf("cache marshal %s failed: %v", key, err)
		return
	}
	if err := a.store.Set(ctx, key, data, a.cfg.CacheTTL); err != nil {
		log.Printf("cache set %s failed: %v", key, err)
	}
}

func anySuccess(results []fetchResult) bool {
	for _, res := range results {
		if res.err == nil {
			return true
		}
	}
	return false
}

func attemptedNames(results []fetchResult) string {
	names := make([]string, 0, len(results))
	for _, res := range results {
		names = append(names, res.name)
	}
	return strings.Join(names, ",")
}

func normalizeNames(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
