// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

// Routes mounts the campaign API on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.CreateCampaign)
		r.Get("/", c.ListCampaigns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", c.GetCampaign)
			r.Post("/recipients", c.AddRecipients)
			r.Get("/messages", c.ListMessages)
			r.Put("/messages/{channel}", c.UpsertMessage)
			r.Post("/schedule", c.ScheduleCampaign)
			r.Post("/execute", c.ExecuteCampaign)
			r.Post("/personalized-preview", c.PersonalizedPreview)
		})
	})
	r.Post("/messages/send", c.SendMessage)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.L().Warnw("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := appErrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logx.L().Errorw("request_failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, map[string]any{"success": false, "error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, appErrors.NewValidation("id", "invalid campaign id"))
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, appErrors.NewValidation("body", "invalid body: "+err.Error()))
		return false
	}
	return true
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if !decode(w, r, &body) {
		return
	}
	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"campaign_id": campaign.ID,
		"campaign":    campaign,
	})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, q.Get("channel"), q.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	details, err := c.CampaignService.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "campaign": details})
}

func (c *CampaignController) AddRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		Recipients []*model.Recipient `json:"recipients"`
	}
	if !decode(w, r, &body) {
		return
	}
	n, err := c.CampaignService.AddRecipientsToCampaign(r.Context(), id, body.Recipients)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"added":   n,
		"message": strconv.Itoa(n) + " recipients added to campaign",
	})
}

func (c *CampaignController) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	msgs, err := c.CampaignService.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": msgs})
}

func (c *CampaignController) UpsertMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		Template string `json:"template"`
	}
	if !decode(w, r, &body) {
		return
	}
	msg, err := c.CampaignService.UpsertMessage(r.Context(), id, model.Channel(chi.URLParam(r, "channel")), body.Template)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var opts model.ScheduleOptions
	if !decode(w, r, &opts) {
		return
	}
	campaign, err := c.CampaignService.ScheduleCampaign(r.Context(), id, &opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "campaign": campaign})
}

func (c *CampaignController) ExecuteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	res, err := c.CampaignService.ExecuteCampaignNow(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": res})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		RecipientID      int           `json:"recipient_id"`
		Channel          model.Channel `json:"channel"`
		OverrideTemplate *string       `json:"override_template"`
	}
	if !decode(w, r, &body) {
		return
	}

	preview, err := c.CampaignService.RenderPreview(r.Context(), id, body.RecipientID, body.Channel, body.OverrideTemplate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rendered_message": preview.Message,
		"channel":          preview.Channel,
		"validation":       preview.Validation,
		"used_template":    body.OverrideTemplate,
		"recipient_id":     body.RecipientID,
	})
}

func (c *CampaignController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Template    string           `json:"template"`
		Channel     model.Channel    `json:"channel"`
		RecipientID int              `json:"recipient_id"`
		Recipient   *model.Recipient `json:"recipient"`
		CampaignID  *int             `json:"campaign_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	recipient := body.Recipient
	if recipient == nil && body.RecipientID > 0 {
		recipient = &model.Recipient{ID: body.RecipientID}
	}

	res, err := c.CampaignService.SendMessage(r.Context(), body.Template, body.Channel, recipient, body.CampaignID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}
