// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/message"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduler"
)

const (
	errNoMessages      = "No messages found for campaign"
	errNoViableChannel = "No suitable channels available for recipient"
	errNoTemplate      = "No message template for any viable channel"
	errAllChannels     = "All viable channels failed"
)

// JobScheduler registers a campaign's recurring job.
type JobScheduler interface {
	ScheduleCampaign(c *model.Campaign) error
}

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	MessageRepo   repository.MessageRepositoryInterface
	Engine        *OutreachEngine
	Scheduler     JobScheduler

	// SendDelay throttles consecutive recipients within one pass.
	SendDelay time.Duration
	Location  *time.Location
	Now       func() time.Time
}

// CreateCampaignInput is the caller-supplied part of a new campaign.
type CreateCampaignInput struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Channels        []model.Channel        `json:"channels"`
	StartDate       *time.Time             `json:"start_date,omitempty"`
	EndDate         *time.Time             `json:"end_date,omitempty"`
	ScheduleOptions *model.ScheduleOptions `json:"schedule_options,omitempty"`
	CreatedBy       string                 `json:"created_by"`
	Company         string                 `json:"company"`
	Website         string                 `json:"website"`
	ContactPhone    string                 `json:"contact_phone"`
	ContactEmail    string                 `json:"contact_email"`
	Purpose         string                 `json:"purpose"`
	UseEnhancement  bool                   `json:"use_enhancement"`
}

// Preview is a rendered, validated message that was not sent.
type Preview struct {
	Channel    model.Channel  `json:"channel"`
	Message    string         `json:"message"`
	Validation message.Result `json:"validation"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, appErrors.NewValidation("name", "is required")
	}
	if len(in.Channels) == 0 {
		return nil, appErrors.NewValidation("channels", "at least one channel is required")
	}
	seen := map[model.Channel]bool{}
	channels := make([]model.Channel, 0, len(in.Channels))
	for _, ch := range in.Channels {
		if !ch.Valid() {
			return nil, appErrors.NewUnknownChannel(string(ch))
		}
		if !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}

	start := s.now()
	if in.StartDate != nil {
		start = *in.StartDate
	}
	if in.EndDate != nil && in.EndDate.Before(start) {
		return nil, appErrors.NewValidation("end_date", "must not be before start_date")
	}

	c := &model.Campaign{
		Name:            name,
		Description:     in.Description,
		Channels:        channels,
		StartDate:       start,
		EndDate:         in.EndDate,
		Status:          model.StatusDraft,
		ScheduleOptions: in.ScheduleOptions,
		CreatedBy:       in.CreatedBy,
		Company:         in.Company,
		Website:         in.Website,
		ContactPhone:    in.ContactPhone,
		ContactEmail:    in.ContactEmail,
		Purpose:         in.Purpose,
		UseEnhancement:  in.UseEnhancement,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	logx.L().Infow("campaign_created", "campaign_id", c.ID, "channels", c.Channels)
	return c, nil
}

// GetCampaign returns the campaign with its recipient counters.
func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*model.CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.CampaignDetails{Campaign: c, Stats: stats}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, channel, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// AddRecipientsToCampaign upserts recipients and enrolls them as pending.
// The batch is all-or-nothing.
func (s *CampaignService) AddRecipientsToCampaign(ctx context.Context, campaignID int, recipients []*model.Recipient) (int, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, appErrors.NewValidation("recipients", "at least one recipient is required")
	}
	for i, r := range recipients {
		if r == nil {
			return 0, appErrors.NewValidation(fmt.Sprintf("recipients[%d]", i), "is empty")
		}
		if r.Platform != "" && !r.Platform.IsSocial() {
			return 0, appErrors.NewValidation(fmt.Sprintf("recipients[%d].platform", i), "must be a social channel")
		}
		if r.Email == "" && r.Phone == "" && r.PlatformID == "" {
			return 0, appErrors.NewValidation(fmt.Sprintf("recipients[%d]", i), "needs an email, phone or platform id")
		}
	}

	n, err := s.RecipientRepo.Enroll(ctx, campaignID, recipients)
	if err != nil {
		logx.L().Errorw("recipient_enroll_failed", "campaign_id", campaignID, "error", err)
		return 0, err
	}
	logx.L().Infow("recipients_added", "campaign_id", campaignID, "count", n)
	return n, nil
}

// UpsertMessage stores the campaign's template for one of its channels.
func (s *CampaignService) UpsertMessage(ctx context.Context, campaignID int, ch model.Channel, tmpl string) (*model.Message, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !ch.Valid() {
		return nil, appErrors.NewUnknownChannel(string(ch))
	}
	if !c.HasChannel(ch) {
		return nil, appErrors.NewValidation("channel", fmt.Sprintf("%s is not enabled for this campaign", ch))
	}
	if strings.TrimSpace(tmpl) == "" {
		return nil, appErrors.NewValidation("template", "cannot be empty")
	}
	m := &model.Message{CampaignID: campaignID, Channel: ch, Template: tmpl}
	if err := s.MessageRepo.Upsert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *CampaignService) ListMessages(ctx context.Context, campaignID int) ([]*model.Message, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.MessageRepo.ListByCampaign(ctx, campaignID)
}

// ScheduleCampaign stores the options, moves the campaign to scheduled and
// registers its job.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, campaignID int, opts *model.ScheduleOptions) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.StatusCompleted {
		return nil, appErrors.NewInvalidTransition(c.ID, string(c.Status), string(model.StatusScheduled))
	}
	if _, err := scheduler.CronExpression(opts, c.StartDate, s.Location); err != nil {
		return nil, err
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.EndDate.Before(*opts.StartDate) {
		return nil, appErrors.NewValidation("end_date", "must not be before start_date")
	}

	if err := s.CampaignRepo.SetSchedule(ctx, c.ID, opts); err != nil {
		return nil, err
	}
	if _, err := s.CampaignRepo.AdvanceStatus(ctx, c.ID, model.StatusScheduled); err != nil {
		return nil, err
	}
	c, err = s.CampaignRepo.GetByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if s.Scheduler != nil {
		if err := s.Scheduler.ScheduleCampaign(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ExecuteCampaignNow sends to every pending recipient of the campaign.
func (s *CampaignService) ExecuteCampaignNow(ctx context.Context, campaignID int) (*model.ExecutionResult, error) {
	return s.ExecuteCampaignBatch(ctx, campaignID, 0)
}

// ExecuteCampaignBatch sends to at most limit pending recipients, oldest
// first. limit <= 0 means all of them.
func (s *CampaignService) ExecuteCampaignBatch(ctx context.Context, campaignID, limit int) (*model.ExecutionResult, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.StatusCompleted {
		return nil, appErrors.NewInvalidTransition(c.ID, string(c.Status), string(model.StatusInProgress))
	}
	if c.Expired(s.now()) {
		if _, err := s.CampaignRepo.AdvanceStatus(ctx, c.ID, model.StatusCompleted); err != nil {
			return nil, err
		}
		logx.L().Infow("campaign_end_date_reached", "campaign_id", c.ID)
		return nil, appErrors.NewInvalidTransition(c.ID, string(model.StatusCompleted), string(model.StatusInProgress))
	}

	pending, err := s.RecipientRepo.ListPending(ctx, c.ID, limit)
	if err != nil {
		return nil, err
	}
	// A caller going away must not strand the rest of the pass.
	return s.ExecuteRecipients(context.WithoutCancel(ctx), c, pending)
}

// ViableChannels lists, in campaign order, the channels r can be reached on.
func ViableChannels(r *model.Recipient, c *model.Campaign) []model.Channel {
	var out []model.Channel
	if r == nil || c == nil {
		return out
	}
	for _, ch := range c.Channels {
		if r.ReachableOn(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// ExecuteRecipients runs one sequential pass over pending. Each recipient is
// tried on its viable channels until one succeeds, then marked sent or
// failed. The campaign completes once nothing is pending. Cancelling ctx
// stops the pass between recipients; the scheduler cancels it on shutdown.
func (s *CampaignService) ExecuteRecipients(ctx context.Context, c *model.Campaign, pending []*model.CampaignRecipient) (*model.ExecutionResult, error) {
	msgs, err := s.MessageRepo.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, appErrors.NewValidation("messages", errNoMessages)
	}
	templates := make(map[model.Channel]string, len(msgs))
	for _, m := range msgs {
		templates[m.Channel] = m.Template
	}

	if c.Status != model.StatusInProgress {
		ok, err := s.CampaignRepo.AdvanceStatus(ctx, c.ID, model.StatusInProgress)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErrors.NewInvalidTransition(c.ID, string(c.Status), string(model.StatusInProgress))
		}
		c.Status = model.StatusInProgress
	}

	res := &model.ExecutionResult{CampaignID: c.ID, Total: len(pending), Details: []model.RecipientOutcome{}}
	for i, p := range pending {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				logx.L().Warnw("campaign_pass_interrupted", "campaign_id", c.ID, "processed", i, "error", err)
				return res, err
			}
		}

		out := s.executeRecipient(ctx, c, p, templates)
		status := model.RecipientFailed
		if out.Success {
			status = model.RecipientSent
			res.Successful++
		} else {
			res.Failed++
		}
		res.Details = append(res.Details, out)

		if err := s.RecipientRepo.UpdateMembershipStatus(ctx, c.ID, p.RecipientID, status); err != nil {
			logx.L().Errorw("membership_update_failed", "campaign_id", c.ID, "recipient_id", p.RecipientID, "error", err)
			return res, err
		}
	}

	left, err := s.RecipientRepo.CountPending(ctx, c.ID)
	if err != nil {
		return res, err
	}
	if left == 0 {
		if _, err := s.CampaignRepo.AdvanceStatus(ctx, c.ID, model.StatusCompleted); err != nil {
			return res, err
		}
		c.Status = model.StatusCompleted
		res.Completed = true
	}

	logx.L().Infow("campaign_pass_finished", "campaign_id", c.ID,
		"total", res.Total, "successful", res.Successful, "failed", res.Failed, "completed", res.Completed)
	return res, nil
}

func (s *CampaignService) executeRecipient(ctx context.Context, c *model.Campaign, p *model.CampaignRecipient, templates map[model.Channel]string) model.RecipientOutcome {
	out := model.RecipientOutcome{RecipientID: p.RecipientID}
	r := p.Recipient
	if r == nil {
		rc, err := s.RecipientRepo.GetByID(ctx, p.RecipientID)
		if err != nil {
			out.Error = errNoViableChannel
			out.Details = []string{err.Error()}
			return out
		}
		r = rc
	}

	viable := ViableChannels(r, c)
	if len(viable) == 0 {
		out.Error = errNoViableChannel
		return out
	}

	tried := false
	for _, ch := range viable {
		tmpl, ok := templates[ch]
		if !ok {
			continue
		}
		tried = true
		dr := s.Engine.SendMessage(ctx, tmpl, ch, r, c)
		if dr.Success {
			out.Success = true
			out.Channel = ch
			out.MessageID = dr.MessageID
			out.Details = nil
			return out
		}
		out.Details = append(out.Details, fmt.Sprintf("%s: %s", ch, errorText(dr)))
	}

	if !tried {
		out.Error = errNoTemplate
	} else {
		out.Error = errAllChannels
	}
	return out
}

func (s *CampaignService) pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.SendDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.SendDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RenderPreview renders and validates a campaign message for one recipient
// without sending it. override replaces the stored template when non-empty.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, recipientID int, ch model.Channel, override *string) (*Preview, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	r, err := s.RecipientRepo.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if !ch.Valid() {
		return nil, appErrors.NewUnknownChannel(string(ch))
	}

	tmpl := ""
	if override != nil && strings.TrimSpace(*override) != "" {
		tmpl = *override
	} else {
		msgs, err := s.MessageRepo.ListByCampaign(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.Channel == ch {
				tmpl = m.Template
				break
			}
		}
	}
	if strings.TrimSpace(tmpl) == "" {
		return nil, appErrors.NewValidation("template", "cannot be empty")
	}

	rendered := s.Engine.Personalizer.Render(ctx, tmpl, r, c, ch)
	return &Preview{
		Channel:    ch,
		Message:    rendered,
		Validation: s.Engine.Validator.Validate(rendered, ch),
	}, nil
}

// SendMessage is the single-message entry point. A stored recipient is
// loaded when only its id is given; campaignID is optional.
func (s *CampaignService) SendMessage(ctx context.Context, tmpl string, ch model.Channel, r *model.Recipient, campaignID *int) (model.DeliveryResult, error) {
	if r == nil {
		return model.DeliveryResult{}, appErrors.NewValidation("recipient", "is required")
	}
	if r.ID != 0 && r.Email == "" && r.Phone == "" && r.PlatformID == "" {
		stored, err := s.RecipientRepo.GetByID(ctx, r.ID)
		if err != nil {
			return model.DeliveryResult{}, err
		}
		r = stored
	}
	var c *model.Campaign
	if campaignID != nil {
		var err error
		if c, err = s.CampaignRepo.GetByID(ctx, *campaignID); err != nil {
			return model.DeliveryResult{}, err
		}
	}
	return s.Engine.SendMessage(ctx, tmpl, ch, r, c), nil
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var _ scheduler.Executor = (*CampaignService)(nil)
