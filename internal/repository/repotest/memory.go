// internal/repository/repotest/memory.go

// Package repotest provides in-memory repositories for tests of the layers
// above the database.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Store backs every in-memory repository with one shared state so that
// campaign stats can see attempts and memberships.
type Store struct {
	mu sync.Mutex

	campaigns  map[int]*model.Campaign
	recipients map[int]*model.Recipient
	members    map[int][]*model.CampaignRecipient
	messages   map[int]map[model.Channel]*model.Message
	attempts   []*model.OutreachAttempt
	events     []*model.AnalyticsEvent
	metrics    map[model.MetricsKey]*model.MetricsRow

	nextID int
	clock  time.Time
}

func NewStore() *Store {
	return &Store{
		campaigns:  map[int]*model.Campaign{},
		recipients: map[int]*model.Recipient{},
		members:    map[int][]*model.CampaignRecipient{},
		messages:   map[int]map[model.Channel]*model.Message{},
		metrics:    map[model.MetricsKey]*model.MetricsRow{},
		clock:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

// tick hands out strictly increasing timestamps so added_at ordering is stable.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) Campaigns() *Campaigns   { return &Campaigns{s} }
func (s *Store) Recipients() *Recipients { return &Recipients{s} }
func (s *Store) Messages() *Messages     { return &Messages{s} }
func (s *Store) Attempts() *Attempts     { return &Attempts{s} }
func (s *Store) Metrics() *Metrics       { return &Metrics{s} }

// AddCampaign stores c as-is, assigning an id when it has none.
func (s *Store) AddCampaign(c *model.Campaign) *model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return c
}

// Campaign returns a copy of the stored campaign.
func (s *Store) Campaign(id int) *model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// Membership returns the status of a recipient in a campaign.
func (s *Store) Membership(campaignID, recipientID int) model.RecipientStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[campaignID] {
		if m.RecipientID == recipientID {
			return m.Status
		}
	}
	return ""
}

func (s *Store) AttemptLog() []*model.OutreachAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.OutreachAttempt(nil), s.attempts...)
}

func (s *Store) Events() []*model.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.AnalyticsEvent(nil), s.events...)
}

// Row returns the aggregate row for key, or nil.
func (s *Store) Row(key model.MetricsKey) *model.MetricsRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.metrics[key]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

type Campaigns struct{ s *Store }

func (r *Campaigns) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	r.s.AddCampaign(c)
	return nil
}

func (r *Campaigns) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	c := r.s.Campaign(id)
	if c == nil {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (r *Campaigns) ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range r.s.campaigns {
		if channel != "" && !c.HasChannel(model.Channel(channel)) {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *Campaigns) AdvanceStatus(ctx context.Context, id int, status model.CampaignStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || !c.Status.CanAdvanceTo(status) {
		return false, nil
	}
	c.Status = status
	now := time.Now()
	c.UpdatedAt = &now
	return true, nil
}

func (r *Campaigns) SetSchedule(ctx context.Context, id int, opts *model.ScheduleOptions) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.ScheduleOptions = opts
	if opts != nil && opts.StartDate != nil {
		c.StartDate = *opts.StartDate
	}
	if opts != nil && opts.EndDate != nil {
		end := *opts.EndDate
		c.EndDate = &end
	}
	return nil
}

func (r *Campaigns) ListSchedulable(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.s.campaigns {
		if c.Status.IsActive() && !c.StartDate.After(now) && !c.Expired(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Campaigns) GetStats(ctx context.Context, id int) (model.CampaignStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var st model.CampaignStats
	for _, m := range r.s.members[id] {
		st.TotalRecipients++
		switch m.Status {
		case model.RecipientPending:
			st.PendingRecipients++
		case model.RecipientFailed:
			st.FailedRecipients++
		}
	}
	reached := map[int]bool{}
	for _, a := range r.s.attempts {
		if a.CampaignID != nil && *a.CampaignID == id && a.Status == model.AttemptSent && a.RecipientID != nil {
			reached[*a.RecipientID] = true
		}
	}
	st.ReachedRecipients = len(reached)
	return st, nil
}

type Recipients struct{ s *Store }

func (r *Recipients) GetByID(ctx context.Context, id int) (*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.recipients[id]
	if !ok {
		return nil, appErrors.NewRecipientNotFound(id)
	}
	cp := *rc
	return &cp, nil
}

func (r *Recipients) FindByPlatform(ctx context.Context, platform model.Channel, platformID string) (*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rc := range r.s.recipients {
		if rc.Platform == platform && rc.PlatformID == platformID {
			cp := *rc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Recipients) match(in *model.Recipient) *model.Recipient {
	ids := make([]int, 0, len(r.s.recipients))
	for id := range r.s.recipients {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		rc := r.s.recipients[id]
		switch {
		case in.Email != "" && rc.Email == in.Email,
			in.Phone != "" && rc.Phone == in.Phone,
			in.Platform != "" && in.PlatformID != "" && rc.Platform == in.Platform && rc.PlatformID == in.PlatformID:
			return rc
		}
	}
	return nil
}

func (r *Recipients) Enroll(ctx context.Context, campaignID int, recipients []*model.Recipient) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	added := 0
	for _, in := range recipients {
		if existing := r.match(in); existing != nil {
			existing.Merge(in)
			in.ID = existing.ID
		} else {
			in.ID = r.s.id()
			cp := *in
			r.s.recipients[in.ID] = &cp
		}
		linked := false
		for _, m := range r.s.members[campaignID] {
			if m.RecipientID == in.ID {
				linked = true
				break
			}
		}
		if !linked {
			added++
			r.s.members[campaignID] = append(r.s.members[campaignID], &model.CampaignRecipient{
				CampaignID:  campaignID,
				RecipientID: in.ID,
				Status:      model.RecipientPending,
				AddedAt:     r.s.tick(),
			})
		}
	}
	return added, nil
}

func (r *Recipients) ListPending(ctx context.Context, campaignID, limit int) ([]*model.CampaignRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.CampaignRecipient
	for _, m := range r.s.members[campaignID] {
		if m.Status != model.RecipientPending {
			continue
		}
		cp := *m
		rc := *r.s.recipients[m.RecipientID]
		cp.Recipient = &rc
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *Recipients) CountPending(ctx context.Context, campaignID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.members[campaignID] {
		if m.Status == model.RecipientPending {
			n++
		}
	}
	return n, nil
}

func (r *Recipients) UpdateMembershipStatus(ctx context.Context, campaignID, recipientID int, status model.RecipientStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members[campaignID] {
		if m.RecipientID == recipientID {
			m.Status = status
			now := time.Now()
			m.UpdatedAt = &now
		}
	}
	return nil
}

type Messages struct{ s *Store }

func (r *Messages) Upsert(ctx context.Context, m *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byCh, ok := r.s.messages[m.CampaignID]
	if !ok {
		byCh = map[model.Channel]*model.Message{}
		r.s.messages[m.CampaignID] = byCh
	}
	if old, ok := byCh[m.Channel]; ok {
		m.ID = old.ID
		m.CreatedAt = old.CreatedAt
	} else {
		m.ID = r.s.id()
		m.CreatedAt = time.Now()
	}
	cp := *m
	byCh[m.Channel] = &cp
	return nil
}

func (r *Messages) ListByCampaign(ctx context.Context, campaignID int) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Message
	for _, m := range r.s.messages[campaignID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type Attempts struct{ s *Store }

func (r *Attempts) Insert(ctx context.Context, a *model.OutreachAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	cp := *a
	r.s.attempts = append(r.s.attempts, &cp)
	return nil
}

type Metrics struct{ s *Store }

func (r *Metrics) InsertEvent(ctx context.Context, ev *model.AnalyticsEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *ev
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r *Metrics) Get(ctx context.Context, key model.MetricsKey) (*model.MetricsRow, error) {
	return r.s.Row(key), nil
}

func (r *Metrics) Insert(ctx context.Context, row *model.MetricsRow) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.metrics[row.Key]; ok {
		return false, nil
	}
	cp := *row
	r.s.metrics[row.Key] = &cp
	return true, nil
}

func (r *Metrics) Increment(ctx context.Context, key model.MetricsKey, d model.Counters, received int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.metrics[key]
	if !ok {
		return nil
	}
	row.Counters = row.Counters.Add(d)
	row.TotalReceived += received
	row.LastInteraction = &at
	return nil
}

var (
	_ repository.CampaignRepositoryInterface  = (*Campaigns)(nil)
	_ repository.RecipientRepositoryInterface = (*Recipients)(nil)
	_ repository.MessageRepositoryInterface   = (*Messages)(nil)
	_ repository.AttemptRepositoryInterface   = (*Attempts)(nil)
	_ repository.MetricsRepositoryInterface   = (*Metrics)(nil)
)
