package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"merch-loyalty-system/config"
	"merch-loyalty-system/models"
)

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}

// In-memory store implementations for service tests. The mutex-guarded
// conditional update in memProfiles mirrors the real store's single-statement
// semantics: check and mutate are indivisible.

func testPolicy() *TierPolicy {
	return NewTierPolicy(config.LoyaltyConfig{
		SilverThreshold: 500,
		GoldThreshold:   1500,
		VIPThreshold:    5000,
	})
}

type memProfiles struct {
	mu       sync.Mutex
	policy   *TierPolicy
	profiles map[string]*models.UserProfile
	failNext error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{
		policy:   testPolicy(),
		profiles: make(map[string]*models.UserProfile),
	}
}

func (m *memProfiles) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memProfiles) Get(_ context.Context, userID string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, okFound := m.profiles[userID]
	if !okFound {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *memProfiles) GetOrCreate(_ context.Context, userID string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, okFound := m.profiles[userID]; okFound {
		clone := *p
		return &clone, nil
	}
	p := &models.UserProfile{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Tier:           m.policy.TierForPoints(0),
	}
	m.profiles[userID] = p
	clone := *p
	return &clone, nil
}

func (m *memProfiles) ApplyDelta(_ context.Context, userID string, delta int64) (int64, models.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, "", err
	}
	p, okFound := m.profiles[userID]
	if !okFound {
		return 0, "", ErrNotFound
	}
	if p.TotalPoints+delta < 0 {
		return 0, "", ErrInsufficientBalance
	}
	p.TotalPoints += delta
	p.Tier = m.policy.TierForPoints(p.TotalPoints)
	return p.TotalPoints, p.Tier, nil
}

func (m *memProfiles) UpdateProfile(_ context.Context, userID, displayName string, birthMonth, birthDay *int) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, okFound := m.profiles[userID]
	if !okFound {
		return nil, ErrNotFound
	}
	p.DisplayName = displayName
	if birthMonth != nil {
		p.BirthdayMonth = birthMonth
	}
	if birthDay != nil {
		p.BirthdayDay = birthDay
	}
	clone := *p
	return &clone, nil
}

func (m *memProfiles) WithBirthdayOn(_ context.Context, month, day int) ([]models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserProfile
	for _, p := range m.profiles {
		if p.BirthdayMonth != nil && p.BirthdayDay != nil && *p.BirthdayMonth == month && *p.BirthdayDay == day {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memLedger struct {
	mu       sync.Mutex
	entries  []models.LedgerEntry
	byKey    map[string]int
	failNext error
}

func newMemLedger() *memLedger {
	return &memLedger{byKey: make(map[string]int)}
}

func (m *memLedger) Append(_ context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, false, err
	}
	if idx, dup := m.byKey[entry.IdempotencyKey]; dup {
		existing := m.entries[idx]
		return &existing, false, nil
	}
	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = time.Now()
	m.byKey[stored.IdempotencyKey] = len(m.entries)
	m.entries = append(m.entries, stored)
	clone := stored
	return &clone, true, nil
}

func (m *memLedger) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.byKey[key]
	return found, nil
}

func (m *memLedger) ListByUser(_ context.Context, userID string, page, size int) ([]models.LedgerEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			all = append(all, m.entries[i])
		}
	}
	total := int64(len(all))
	start := (page - 1) * size
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *memLedger) SumForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *memLedger) ActiveUserIDsSince(_ context.Context, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) && !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	return ids, nil
}

func (m *memLedger) countForUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

type memBadges struct {
	mu       sync.Mutex
	catalog  []models.Badge
	owned    map[string]map[string]time.Time // userID -> badgeID -> awarded
	profiles *memProfiles
	ledger   *memLedger
}

func newMemBadges(profiles *memProfiles, ledger *memLedger, catalog []models.Badge) *memBadges {
	for i := range catalog {
		if catalog[i].ID == "" {
			catalog[i].ID = uuid.NewString()
		}
	}
	return &memBadges{
		catalog:  catalog,
		owned:    make(map[string]map[string]time.Time),
		profiles: profiles,
		ledger:   ledger,
	}
}

func (m *memBadges) Catalog(_ context.Context) ([]models.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Badge(nil), m.catalog...), nil
}

func (m *memBadges) OwnedBadgeIDs(_ context.Context, userID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for id := range m.owned[userID] {
		out[id] = true
	}
	return out, nil
}

func (m *memBadges) Grant(_ context.Context, userID, badgeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owned[userID] == nil {
		m.owned[userID] = make(map[string]time.Time)
	}
	if _, has := m.owned[userID][badgeID]; has {
		return false, nil
	}
	m.owned[userID][badgeID] = time.Now()
	return true, nil
}

func (m *memBadges) Stats(ctx context.Context, userID string) (models.UserStats, error) {
	profile, err := m.profiles.Get(ctx, userID)
	if err != nil {
		return models.UserStats{}, err
	}
	stats := models.UserStats{
		TotalPoints:     profile.TotalPoints,
		Tier:            profile.Tier,
		ProfileComplete: profile.ProfileComplete(),
	}
	m.ledger.mu.Lock()
	for _, e := range m.ledger.entries {
		if e.UserID == userID && e.EventType == models.EventPurchase {
			stats.TotalPurchases++
		}
	}
	m.ledger.mu.Unlock()
	return stats, nil
}

func (m *memBadges) ListOwned(_ context.Context, userID string) ([]OwnedBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OwnedBadge
	for _, b := range m.catalog {
		if awarded, has := m.owned[userID][b.ID]; has {
			out = append(out, OwnedBadge{Badge: b, AwardedAt: awarded})
		}
	}
	return out, nil
}

func (m *memBadges) ownedCodes(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for _, b := range m.catalog {
		if _, has := m.owned[userID][b.ID]; has {
			codes = append(codes, b.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

type memReferrals struct {
	mu         sync.Mutex
	codes      map[string]*models.ReferralCode // by code value
	byUser     map[string]*models.ReferralCode
	referrals  map[string]*models.Referral // by referred id
	failInsert error
}

func newMemReferrals() *memReferrals {
	return &memReferrals{
		codes:     make(map[string]*models.ReferralCode),
		byUser:    make(map[string]*models.ReferralCode),
		referrals: make(map[string]*models.Referral),
	}
}

func (m *memReferrals) CodeByUser(_ context.Context, userID string) (*models.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, found := m.byUser[userID]
	if !found {
		return nil, ErrNotFound
	}
	clone := *rc
	return &clone, nil
}

func (m *memReferrals) InsertCode(_ context.Context, code *models.ReferralCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failInsert; err != nil {
		return err
	}
	if _, taken := m.codes[code.Code]; taken {
		return ErrConflict
	}
	if _, has := m.byUser[code.UserID]; has {
		return ErrConflict
	}
	stored := *code
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	m.codes[stored.Code] = &stored
	m.byUser[stored.UserID] = &stored
	return nil
}

func (m *memReferrals) ResolveCode(_ context.Context, code string) (*models.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, found := m.codes[code]
	if !found {
		return nil, ErrNotFound
	}
	clone := *rc
	return &clone, nil
}

func (m *memReferrals) LinkReferral(_ context.Context, ref *models.Referral) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, linked := m.referrals[ref.ReferredID]; linked {
		return false, nil
	}
	stored := *ref
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	m.referrals[stored.ReferredID] = &stored
	return true, nil
}

func (m *memReferrals) ReferralByReferred(_ context.Context, referredID string) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, found := m.referrals[referredID]
	if !found {
		return nil, ErrNotFound
	}
	clone := *ref
	return &clone, nil
}

func (m *memReferrals) CompleteFirstOrder(_ context.Context, referredID, orderID string, xp int64) (bool, *models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, found := m.referrals[referredID]
	if !found {
		return false, nil, nil
	}
	if ref.FirstOrderID != nil {
		clone := *ref
		return false, &clone, nil
	}
	now := time.Now()
	ref.FirstOrderID = &orderID
	ref.CompletedAt = &now
	ref.XPAwarded = xp
	clone := *ref
	return true, &clone, nil
}

func (m *memReferrals) StatsForReferrer(_ context.Context, referrerID string) (models.ReferralStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats models.ReferralStats
	for _, ref := range m.referrals {
		if ref.ReferrerID != referrerID {
			continue
		}
		stats.TotalReferred++
		if ref.FirstOrderID != nil {
			stats.Completed++
			stats.PointsEarned += ref.XPAwarded
		}
	}
	return stats, nil
}

type memDiscounts struct {
	mu         sync.Mutex
	byCode     map[string]*models.DiscountCode
	byRequest  map[string]*models.DiscountCode
	failCreate error
}

func newMemDiscounts() *memDiscounts {
	return &memDiscounts{
		byCode:    make(map[string]*models.DiscountCode),
		byRequest: make(map[string]*models.DiscountCode),
	}
}

func (m *memDiscounts) Create(_ context.Context, code *models.DiscountCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCreate; err != nil {
		return err
	}
	if _, taken := m.byCode[code.Code]; taken {
		return ErrConflict
	}
	if _, taken := m.byRequest[code.RequestID]; taken {
		return ErrConflict
	}
	stored := *code
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	m.byCode[stored.Code] = &stored
	m.byRequest[stored.RequestID] = &stored
	*code = stored
	return nil
}

func (m *memDiscounts) ByRequestID(_ context.Context, requestID string) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc, found := m.byRequest[requestID]
	if !found {
		return nil, ErrNotFound
	}
	clone := *dc
	return &clone, nil
}

func (m *memDiscounts) PurgeExpiredUnused(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for value, dc := range m.byCode {
		if dc.ValidUntil.Before(before) && dc.Uses == 0 {
			delete(m.byCode, value)
			delete(m.byRequest, dc.RequestID)
			purged++
		}
	}
	return purged, nil
}

// fixture bundles the full service graph over in-memory stores.
type fixture struct {
	profiles   *memProfiles
	ledger     *memLedger
	badgeStore *memBadges
	refStore   *memReferrals
	discounts  *memDiscounts

	projector  *BalanceProjector
	awarder    *Awarder
	badges     *BadgeEvaluator
	referrals  *ReferralService
	redemption *RedemptionService
	loyalty    *LoyaltyService
}

func newFixture(catalog ...models.Badge) *fixture {
	logger := newTestLogger()
	profiles := newMemProfiles()
	ledger := newMemLedger()
	badgeStore := newMemBadges(profiles, ledger, catalog)
	refStore := newMemReferrals()
	discounts := newMemDiscounts()

	projector := NewBalanceProjector(profiles, logger)
	awarder := NewAwarder(profiles, projector, ledger, nil, logger)
	badges := NewBadgeEvaluator(badgeStore, awarder, logger)
	referrals := NewReferralService(refStore, awarder, badges, 10, 250, logger)
	redemption := NewRedemptionService(profiles, projector, ledger, discounts, badges, nil,
		map[int64]int64{100: 200, 250: 500, 500: 1200}, 12, 720*time.Hour, logger)
	policy := testPolicy()
	loyalty := NewLoyaltyService(profiles, ledger, awarder, badges, referrals, policy, 1, 50, logger)

	return &fixture{
		profiles:   profiles,
		ledger:     ledger,
		badgeStore: badgeStore,
		refStore:   refStore,
		discounts:  discounts,
		projector:  projector,
		awarder:    awarder,
		badges:     badges,
		referrals:  referrals,
		redemption: redemption,
		loyalty:    loyalty,
	}
}

// mustBalance reads the projection, failing loudly on a missing profile.
func (f *fixture) mustBalance(ctx context.Context, userID string) int64 {
	p, err := f.profiles.Get(ctx, userID)
	if err != nil {
		panic("profile missing: " + userID)
	}
	return p.TotalPoints
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
