package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/metrics"
	"github.com/Harshitk-cp/ranger/internal/store"
	"go.uber.org/zap"
)

var (
	ErrEmptyStatement = fmt.Errorf("statement is required: %w", domain.ErrValidation)
	ErrEmptyQuery     = fmt.Errorf("query is required: %w", domain.ErrValidation)
	ErrMergeCycle     = fmt.Errorf("tombstone chain does not end: %w", domain.ErrConsistency)
)

const (
	defaultQueryLimit            = 10
	maxQueryLimit                = 100
	maxTombstoneHops             = 8
	defaultConsolidationInterval = 5 * time.Minute
)

type KnowledgeConfig struct {
	// VerificationThreshold is the trust a source ref needs for its item to
	// stay Verified.
	VerificationThreshold float64
	LearningRate          float64
	SimilarityThreshold   float64
}

type KnowledgeService struct {
	store      domain.KnowledgeStore
	embedder   domain.EmbeddingClient
	locks      *KeyLock
	similarity Similarity
	cfg        KnowledgeConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewKnowledgeService(ks domain.KnowledgeStore, embedder domain.EmbeddingClient, cfg KnowledgeConfig, logger *zap.Logger) *KnowledgeService {
	return &KnowledgeService{
		store:      ks,
		embedder:   embedder,
		locks:      NewKeyLock(),
		similarity: DefaultSimilarity,
		cfg:        cfg,
		metrics:    metrics.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		interval:   defaultConsolidationInterval,
		stopCh:     make(chan struct{}),
	}
}

// SetSimilarity replaces the near-duplicate metric used by Consolidate.
func (s *KnowledgeService) SetSimilarity(fn Similarity) {
	s.similarity = fn
}

func (s *KnowledgeService) SetInterval(d time.Duration) {
	s.interval = d
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrStorage)
}

func (s *KnowledgeService) Get(ctx context.Context, key string) (*domain.KnowledgeItem, error) {
	item, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, storageErr("get knowledge item", err)
	}
	return item, nil
}

// lockLive locks key and returns the active item it resolves to, following
// tombstones left by consolidation. The item is nil when nothing is stored.
func (s *KnowledgeService) lockLive(ctx context.Context, key string) (string, *domain.KnowledgeItem, func(), error) {
	for hop := 0; hop < maxTombstoneHops; hop++ {
		unlock, err := s.locks.Lock(ctx, key)
		if err != nil {
			return "", nil, nil, err
		}
		item, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return key, nil, unlock, nil
			}
			unlock()
			return "", nil, nil, storageErr("get knowledge item", err)
		}
		if item.Active() {
			return key, item, unlock, nil
		}
		unlock()
		key = item.MergedInto
	}
	return "", nil, nil, ErrMergeCycle
}

// Upsert records a statement and the verdict reached for it. A new key is
// inserted as Unverified and the verdict applied inline; an existing key is
// merged. A nil verdict means the statement was not verified.
func (s *KnowledgeService) Upsert(ctx context.Context, statement string, confidence float64, verdict *domain.VerificationVerdict) (*domain.KnowledgeItem, error) {
	key := NormalizeKey(statement)
	if key == "" {
		return nil, ErrEmptyStatement
	}

	key, existing, unlock, err := s.lockLive(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	var item *domain.KnowledgeItem
	if existing == nil {
		item = &domain.KnowledgeItem{
			Key:                key,
			Statement:          statement,
			Confidence:         clampConfidence(confidence),
			VerificationStatus: domain.StatusUnverified,
			CreatedAt:          now,
			LastUpdatedAt:      now,
		}
		if s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, statement)
			if err != nil {
				s.logger.Warn("embedding failed, item stored without vector",
					zap.String("key", key), zap.Error(err))
			} else {
				item.Embedding = vec
			}
		}
		s.applyVerdict(item, verdict)
	} else {
		item = existing
		s.mergeVerdict(item, verdict, now)
	}
	s.enforceVerified(item)

	if err := s.store.Put(ctx, item); err != nil {
		return nil, storageErr("persist knowledge item", err)
	}
	s.metrics.KnowledgeUpsertsTotal.Inc()

	s.logger.Debug("knowledge upserted",
		zap.String("key", item.Key),
		zap.String("status", string(item.VerificationStatus)),
		zap.Float64("confidence", item.Confidence),
		zap.Int("merge_count", item.MergeCount))

	return item, nil
}

// applyVerdict moves a freshly inserted item out of Unverified.
func (s *KnowledgeService) applyVerdict(item *domain.KnowledgeItem, verdict *domain.VerificationVerdict) {
	if verdict == nil {
		return
	}
	switch verdict.Verdict {
	case domain.VerdictConfirmed:
		item.Confidence = math.Max(item.Confidence, VerdictConfidence(verdict))
		item.SourceRefs = unionRefs(nil, verdict.Evidence)
		item.VerificationStatus = domain.StatusVerified
	case domain.VerdictContradicted:
		item.Confidence = math.Min(item.Confidence, VerdictConfidence(verdict))
		item.SourceRefs = unionRefs(nil, verdict.Evidence)
		item.VerificationStatus = domain.StatusRejected
	}
}

// mergeVerdict folds a re-extraction of an existing claim into the item.
func (s *KnowledgeService) mergeVerdict(item *domain.KnowledgeItem, verdict *domain.VerificationVerdict, now time.Time) {
	item.MergeCount++
	item.LastUpdatedAt = now

	if verdict == nil || verdict.Verdict == domain.VerdictInconclusive {
		if item.VerificationStatus == domain.StatusPendingVerification {
			item.VerificationStatus = domain.StatusUnverified
		}
		if verdict == nil && item.VerificationStatus == domain.StatusUnverified {
			item.Confidence = ApplyLogOddsDelta(item.Confidence, s.cfg.LearningRate)
		}
		return
	}

	incoming := VerdictConfidence(verdict)
	var incomingMass float64
	for _, ref := range verdict.Evidence {
		incomingMass += ref.TrustScore
	}
	merged := MergeConfidence(item.Confidence, item.TrustMass(), incoming, incomingMass)

	switch verdict.Verdict {
	case domain.VerdictConfirmed:
		item.Confidence = math.Max(item.Confidence, merged)
		item.VerificationStatus = domain.StatusVerified
	case domain.VerdictContradicted:
		item.Confidence = merged
		item.VerificationStatus = domain.StatusRejected
	}
	item.SourceRefs = unionRefs(item.SourceRefs, verdict.Evidence)
}

// enforceVerified downgrades a Verified item that has no source at or above
// the verification threshold.
func (s *KnowledgeService) enforceVerified(item *domain.KnowledgeItem) {
	if item.VerificationStatus == domain.StatusVerified && item.MaxTrust() < s.cfg.VerificationThreshold {
		item.VerificationStatus = domain.StatusUnverified
	}
}

// unionRefs appends refs not already present by URL. A repeated URL keeps
// its original position and takes the newer observation.
func unionRefs(base, add []domain.SourceRef) []domain.SourceRef {
	out := append([]domain.SourceRef(nil), base...)
	index := make(map[string]int, len(out))
	for i, ref := range out {
		index[ref.URL] = i
	}
	for _, ref := range add {
		if i, ok := index[ref.URL]; ok {
			if ref.FetchedAt.After(out[i].FetchedAt) {
				out[i] = ref
			}
			continue
		}
		index[ref.URL] = len(out)
		out = append(out, ref)
	}
	return out
}

// MarkPending moves an existing Unverified item to PendingVerification. It
// returns nil when the statement is not stored yet.
func (s *KnowledgeService) MarkPending(ctx context.Context, statement string) (*domain.KnowledgeItem, error) {
	key := NormalizeKey(statement)
	if key == "" {
		return nil, ErrEmptyStatement
	}

	_, item, unlock, err := s.lockLive(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if item == nil || item.VerificationStatus != domain.StatusUnverified {
		return item, nil
	}
	item.VerificationStatus = domain.StatusPendingVerification
	item.LastUpdatedAt = s.now()
	if err := s.store.Put(ctx, item); err != nil {
		return nil, storageErr("mark item pending", err)
	}
	return item, nil
}

// Query returns active items ranked by term overlap with text, then by
// confidence.
func (s *KnowledgeService) Query(ctx context.Context, text string, limit int) ([]domain.KnowledgeItem, error) {
	terms := keyTokens(text)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	candidates, err := s.store.Search(ctx, terms, limit*4)
	if err != nil {
		return nil, storageErr("search knowledge", err)
	}

	type ranked struct {
		item      domain.KnowledgeItem
		relevance float64
	}
	termSet := tokenSet(NormalizeKey(text))
	results := make([]ranked, 0, len(candidates))
	for _, item := range candidates {
		hits := 0
		for t := range tokenSet(item.Key) {
			if termSet[t] {
				hits++
			}
		}
		results = append(results, ranked{item: item, relevance: float64(hits) / float64(len(termSet))})
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.relevance != b.relevance {
			return a.relevance > b.relevance
		}
		if a.item.Confidence != b.item.Confidence {
			return a.item.Confidence > b.item.Confidence
		}
		return a.item.Key < b.item.Key
	})

	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]domain.KnowledgeItem, len(results))
	for i, r := range results {
		out[i] = r.item
	}
	return out, nil
}

// Consolidate merges near-duplicate items. Pairs are visited in key order;
// the merged-away item becomes a tombstone pointing at its target. Targets
// keep their statement, so a second pass finds nothing new to merge.
func (s *KnowledgeService) Consolidate(ctx context.Context) (*domain.ConsolidationResult, error) {
	items, err := s.store.List(ctx, false)
	if err != nil {
		return nil, storageErr("list knowledge", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	result := &domain.ConsolidationResult{Examined: len(items)}
	gone := make([]bool, len(items))

	for i := range items {
		if gone[i] {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if gone[j] {
				continue
			}
			score := s.similarity(&items[i], &items[j])
			if score < s.cfg.SimilarityThreshold {
				continue
			}

			target, source, err := s.mergePair(ctx, items[i].Key, items[j].Key)
			if err != nil {
				return result, err
			}
			if target == nil {
				continue
			}

			result.Merged++
			result.Merges = append(result.Merges, domain.ConsolidationMerge{
				SourceKey: source.Key,
				TargetKey: target.Key,
				Score:     score,
			})
			s.metrics.KnowledgeMergesTotal.Inc()

			if source.Key == items[i].Key {
				gone[i] = true
				items[j] = *target
				break
			}
			gone[j] = true
			items[i] = *target
		}
	}

	if result.Merged > 0 {
		s.logger.Info("knowledge consolidated",
			zap.Int("examined", result.Examined),
			zap.Int("merged", result.Merged))
	}
	return result, nil
}

// mergePair locks both keys, re-reads them and folds the weaker item into
// the stronger one in a single write. It returns nils when either item
// changed state since it was listed.
func (s *KnowledgeService) mergePair(ctx context.Context, keyA, keyB string) (*domain.KnowledgeItem, *domain.KnowledgeItem, error) {
	unlock, err := s.locks.LockAll(ctx, keyA, keyB)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	a, err := s.store.Get(ctx, keyA)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, storageErr("get knowledge item", err)
	}
	b, err := s.store.Get(ctx, keyB)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, storageErr("get knowledge item", err)
	}
	if !a.Active() || !b.Active() {
		return nil, nil, nil
	}

	target, source := mergeOrder(a, b)
	now := s.now()
	target.SourceRefs = unionRefs(target.SourceRefs, source.SourceRefs)
	target.MergeCount += source.MergeCount + 1
	target.LastUpdatedAt = now
	source.MergedInto = target.Key
	source.LastUpdatedAt = now

	if err := s.store.Put(ctx, target, source); err != nil {
		return nil, nil, storageErr("persist merge", err)
	}
	return target, source, nil
}

// mergeOrder picks the surviving item: higher confidence, then older, then
// the smaller key.
func mergeOrder(a, b *domain.KnowledgeItem) (target, source *domain.KnowledgeItem) {
	switch {
	case a.Confidence != b.Confidence:
		if a.Confidence > b.Confidence {
			return a, b
		}
		return b, a
	case !a.CreatedAt.Equal(b.CreatedAt):
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	case a.Key < b.Key:
		return a, b
	default:
		return b, a
	}
}

func (s *KnowledgeService) Stats(ctx context.Context) (*domain.KnowledgeStats, error) {
	items, err := s.store.List(ctx, true)
	if err != nil {
		return nil, storageErr("list knowledge", err)
	}

	stats := &domain.KnowledgeStats{
		ByStatus: make(map[domain.VerificationStatus]int),
		ByBand:   make(map[domain.ConfidenceBand]int),
	}
	var sum float64
	for _, item := range items {
		if !item.Active() {
			stats.Tombstones++
			continue
		}
		stats.Total++
		stats.ByStatus[item.VerificationStatus]++
		stats.ByBand[domain.ComputeBand(item.Confidence)]++
		sum += item.Confidence
	}
	if stats.Total > 0 {
		stats.AverageConfidence = sum / float64(stats.Total)
	}
	return stats, nil
}

// Export dumps every stored item, tombstones included.
func (s *KnowledgeService) Export(ctx context.Context) (*domain.KnowledgeExport, error) {
	items, err := s.store.List(ctx, true)
	if err != nil {
		return nil, storageErr("list knowledge", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return &domain.KnowledgeExport{
		ExportedAt: s.now(),
		TotalItems: len(items),
		Items:      items,
	}, nil
}

// Import inserts items whose key is not stored yet. Existing keys and
// malformed items are skipped.
func (s *KnowledgeService) Import(ctx context.Context, export *domain.KnowledgeExport) (*domain.ImportResult, error) {
	result := &domain.ImportResult{}
	for i := range export.Items {
		item := export.Items[i].Clone()
		if item.Key == "" {
			item.Key = NormalizeKey(item.Statement)
		}
		if item.Key == "" || item.Confidence < 0 || item.Confidence > 1 ||
			!domain.ValidVerificationStatus(string(item.VerificationStatus)) {
			result.Skipped++
			continue
		}

		imported, err := s.importOne(ctx, item)
		if err != nil {
			return result, err
		}
		if imported {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	s.logger.Info("knowledge imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *KnowledgeService) importOne(ctx context.Context, item *domain.KnowledgeItem) (bool, error) {
	unlock, err := s.locks.Lock(ctx, item.Key)
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, err := s.store.Get(ctx, item.Key); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, storageErr("get knowledge item", err)
	}

	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.LastUpdatedAt.IsZero() {
		item.LastUpdatedAt = now
	}
	s.enforceVerified(item)
	if err := s.store.Put(ctx, item); err != nil {
		return false, storageErr("persist imported item", err)
	}
	return true, nil
}

// Prune physically removes tombstones left by consolidation.
func (s *KnowledgeService) Prune(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteMerged(ctx)
	if err != nil {
		return 0, storageErr("prune tombstones", err)
	}
	if n > 0 {
		s.logger.Info("pruned knowledge tombstones", zap.Int64("count", n))
	}
	return n, nil
}

// Start runs consolidation on a periodic schedule in a background goroutine.
func (s *KnowledgeService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("knowledge consolidation started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := s.Consolidate(ctx); err != nil {
					s.logger.Error("knowledge consolidation failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("knowledge consolidation stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the consolidation worker.
func (s *KnowledgeService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
