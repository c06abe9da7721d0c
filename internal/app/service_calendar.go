package app

import (
	"context"
	"strings"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/email"
	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/Wesp1nzee/crm-deploy/internal/util"
	"go.uber.org/zap"
)

const (
	ActivityEvent = "event"
	ActivityTask  = "task"

	defaultActivityColor = "#3788d8"
)

type CalendarListInput struct {
	Start    string
	End      string
	OnlyMine bool
}

type activityBase struct {
	Title       string    `json:"title" validate:"required,max=255"`
	Description string    `json:"description"`
	Color       string    `json:"color" validate:"omitempty,color"`
	AllDay      bool      `json:"all_day"`
	StartAt     time.Time `json:"start_at"`
	CaseID      *string   `json:"case_id" validate:"omitempty,uuid"`
	ClientID    *string   `json:"client_id" validate:"omitempty,uuid"`
}

type CreateEventInput struct {
	activityBase
	EndAt       time.Time `json:"end_at"`
	Location    string    `json:"location" validate:"max=255"`
	AttendeeIDs []string  `json:"attendee_ids" validate:"omitempty,dive,uuid"`
}

type CreateTaskInput struct {
	activityBase
	EndAt *time.Time `json:"end_at"`
}

// UpdateActivityInput covers both kinds. Fields that do not apply to the
// stored activity's type are rejected.
type UpdateActivityInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	Location    *string    `json:"location" validate:"omitempty,max=255"`
	Status      *string    `json:"status" validate:"omitempty,oneof=scheduled cancelled"`
	AttendeeIDs *[]string  `json:"attendee_ids" validate:"omitempty,dive,uuid"`
	IsCompleted *bool      `json:"is_completed"`
	Color       *string    `json:"color" validate:"omitempty,color"`
}

func parseCalendarBound(v, name string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := parseRFC3339(v); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return &t, nil
	}
	return nil, badRequest("Invalid " + name + " timestamp")
}

// ListActivities returns activities overlapping [start, end). Admins and CEOs
// see the whole company unless only_mine is set; everyone else sees what they
// created or attend.
func (s *Service) ListActivities(ctx context.Context, actor Actor, input CalendarListInput) ([]ActivityView, error) {
	from, err := parseCalendarBound(input.Start, "start")
	if err != nil {
		return nil, err
	}
	to, err := parseCalendarBound(input.End, "end")
	if err != nil {
		return nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, badRequest("end must not be before start")
	}

	filter := store.ActivityFilter{CompanyID: actor.CompanyID, From: from, To: to}
	seesAll := actor.Role == rbac.RoleAdmin || actor.Role == rbac.RoleCEO
	if input.OnlyMine || !seesAll {
		filter.ParticipantID = actor.UserID
	}
	items, err := s.store.ListActivities(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityView, 0, len(items))
	for _, a := range items {
		out = append(out, activityView(a))
	}
	return out, nil
}

// activityLinks checks that the optional case and client belong to the tenant
// and returns the case for notifications.
func (s *Service) activityLinks(ctx context.Context, actor Actor, caseID, clientID *string) (*store.Case, error) {
	var linked *store.Case
	if caseID != nil {
		c, err := s.visibleCase(ctx, actor, *caseID)
		if err != nil {
			return nil, err
		}
		linked = &c
	}
	if clientID != nil {
		if _, err := s.store.GetClient(ctx, actor.CompanyID, *clientID); err != nil {
			return nil, orNotFound(err, "Client not found")
		}
	}
	return linked, nil
}

func (b activityBase) activity(actor Actor, kind string) store.CalendarActivity {
	color := b.Color
	if color == "" {
		color = defaultActivityColor
	}
	creator := actor.UserID
	return store.CalendarActivity{
		CompanyID:   actor.CompanyID,
		Type:        kind,
		CreatorID:   &creator,
		Title:       strings.TrimSpace(b.Title),
		Description: b.Description,
		Color:       color,
		StartAt:     b.StartAt,
		AllDay:      b.AllDay,
		Status:      "scheduled",
		CaseID:      b.CaseID,
		ClientID:    b.ClientID,
	}
}

func (s *Service) CreateEvent(ctx context.Context, actor Actor, input CreateEventInput) (ActivityView, error) {
	if err := validateInput(input); err != nil {
		return ActivityView{}, err
	}
	if input.StartAt.IsZero() || input.EndAt.IsZero() {
		return ActivityView{}, badRequest("start_at and end_at are required")
	}
	if !input.EndAt.After(input.StartAt) {
		return ActivityView{}, badRequest("End time must be later than start time")
	}
	linked, err := s.activityLinks(ctx, actor, input.CaseID, input.ClientID)
	if err != nil {
		return ActivityView{}, err
	}
	attendees, err := s.companyUsers(ctx, actor, input.AttendeeIDs)
	if err != nil {
		return ActivityView{}, err
	}

	item := input.activity(actor, ActivityEvent)
	end := input.EndAt
	item.EndAt = &end
	item.Location = input.Location
	ids := make([]string, 0, len(attendees))
	for _, u := range attendees {
		ids = append(ids, u.ID)
	}

	created, err := s.store.InsertActivity(ctx, item, ids)
	if err != nil {
		return ActivityView{}, err
	}
	s.notifyAttendees(ctx, actor, created, linked, attendees)
	return activityView(created), nil
}

func (s *Service) CreateTask(ctx context.Context, actor Actor, input CreateTaskInput) (ActivityView, error) {
	if err := validateInput(input); err != nil {
		return ActivityView{}, err
	}
	if input.StartAt.IsZero() {
		return ActivityView{}, badRequest("start_at is required")
	}
	if input.EndAt != nil && input.EndAt.Before(input.StartAt) {
		return ActivityView{}, badRequest("End time must not be earlier than start time")
	}
	if _, err := s.activityLinks(ctx, actor, input.CaseID, input.ClientID); err != nil {
		return ActivityView{}, err
	}
	item := input.activity(actor, ActivityTask)
	item.EndAt = input.EndAt
	created, err := s.store.InsertActivity(ctx, item, nil)
	if err != nil {
		return ActivityView{}, err
	}
	return activityView(created), nil
}

// editableActivity loads an activity the caller created, or any activity of
// the company for privileged roles.
func (s *Service) editableActivity(ctx context.Context, actor Actor, activityID string) (store.CalendarActivity, error) {
	item, err := s.store.GetActivity(ctx, actor.CompanyID, activityID)
	if err != nil {
		return store.CalendarActivity{}, orNotFound(err, "Activity not found")
	}
	if !rbac.CanAccessOwned(actor.Role, actor.UserID, deref(item.CreatorID)) {
		return store.CalendarActivity{}, forbidden("You can only change activities you created")
	}
	return item, nil
}

func (s *Service) UpdateActivity(ctx context.Context, actor Actor, activityID string, input UpdateActivityInput) (ActivityView, error) {
	if err := validateInput(input); err != nil {
		return ActivityView{}, err
	}
	item, err := s.editableActivity(ctx, actor, activityID)
	if err != nil {
		return ActivityView{}, err
	}

	isEvent := item.Type == ActivityEvent
	if isEvent && input.IsCompleted != nil {
		return ActivityView{}, badRequest("Events cannot be completed")
	}
	if !isEvent && (input.EndAt != nil || input.Location != nil || input.Status != nil || input.AttendeeIDs != nil) {
		return ActivityView{}, badRequest("Tasks only accept title, description, start_at, is_completed and color")
	}

	if input.Title != nil {
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		item.Description = *input.Description
	}
	if input.StartAt != nil {
		item.StartAt = *input.StartAt
	}
	if input.EndAt != nil {
		end := *input.EndAt
		item.EndAt = &end
	}
	if input.Location != nil {
		item.Location = *input.Location
	}
	if input.Status != nil {
		item.Status = *input.Status
	}
	if input.Color != nil {
		item.Color = *input.Color
	}
	if input.IsCompleted != nil {
		s.setCompleted(&item, *input.IsCompleted)
	}
	if isEvent && item.EndAt != nil && !item.EndAt.After(item.StartAt) {
		return ActivityView{}, badRequest("End time must be later than start time")
	}

	var attendeeIDs []string
	if input.AttendeeIDs != nil {
		users, err := s.companyUsers(ctx, actor, *input.AttendeeIDs)
		if err != nil {
			return ActivityView{}, err
		}
		attendeeIDs = make([]string, 0, len(users))
		for _, u := range users {
			attendeeIDs = append(attendeeIDs, u.ID)
		}
	}

	updated, err := s.store.UpdateActivity(ctx, item, attendeeIDs)
	if err != nil {
		return ActivityView{}, orNotFound(err, "Activity not found")
	}
	return activityView(updated), nil
}

func (s *Service) setCompleted(item *store.CalendarActivity, done bool) {
	item.IsCompleted = done
	if done {
		now := s.now().UTC()
		item.CompletedAt = &now
	} else {
		item.CompletedAt = nil
	}
}

func (s *Service) DeleteActivity(ctx context.Context, actor Actor, activityID string) error {
	if _, err := s.editableActivity(ctx, actor, activityID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteActivity(ctx, actor.CompanyID, activityID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Activity not found")
	}
	return nil
}

// ToggleTask flips the completion flag of a task.
func (s *Service) ToggleTask(ctx context.Context, actor Actor, activityID string) (ActivityView, error) {
	item, err := s.editableActivity(ctx, actor, activityID)
	if err != nil {
		return ActivityView{}, err
	}
	if item.Type != ActivityTask {
		return ActivityView{}, notFound("Task not found")
	}
	s.setCompleted(&item, !item.IsCompleted)
	updated, err := s.store.UpdateActivity(ctx, item, nil)
	if err != nil {
		return ActivityView{}, orNotFound(err, "Task not found")
	}
	return activityView(updated), nil
}

// notifyAttendees mails an invitation to every attendee except the organizer
// and records the outcome as a system notification.
func (s *Service) notifyAttendees(ctx context.Context, actor Actor, event store.CalendarActivity, linked *store.Case, attendees []store.UserShort) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	recipients := make([]store.MailRecipient, 0, len(attendees))
	to := make([]string, 0, len(attendees))
	for _, u := range attendees {
		if u.ID == actor.UserID || u.Email == "" {
			continue
		}
		recipients = append(recipients, store.MailRecipient{Email: u.Email, Name: u.FullName, Type: "to"})
		to = append(to, u.Email)
	}
	if len(to) == 0 {
		return
	}

	data := email.InvitationData{
		OrganizerName: actor.FullName,
		Title:         event.Title,
		Description:   event.Description,
		Location:      event.Location,
		StartAt:       event.StartAt,
		EndAt:         event.EndAt,
		AllDay:        event.AllDay,
	}
	if actor.Snapshot.Company != nil {
		data.CompanyName = actor.Snapshot.Company.Name
	}
	var caseID *string
	if linked != nil {
		data.CaseNumber = linked.Number
		caseID = &linked.ID
	}
	msg, err := email.RenderInvitation(data)
	if err != nil {
		s.logger.Error("render invitation", zap.String("activity_id", event.ID), zap.Error(err))
		return
	}
	msg.To = to

	ctx = context.WithoutCancel(ctx)
	s.async(func() {
		status := "sent"
		if err := s.mailer.Send(msg); err != nil {
			status = "failed"
			s.logger.Warn("send invitation", zap.String("activity_id", event.ID), zap.Error(err))
		}
		senderEmail, senderName := s.mailer.Sender()
		processed := s.now().UTC()
		organizer := actor.UserID
		record := store.MailMessage{
			ThreadID:    util.NewID(),
			UserID:      &organizer,
			CaseID:      caseID,
			SenderEmail: senderEmail,
			SenderName:  senderName,
			Subject:     msg.Subject,
			MessageType: "system_notification",
			Status:      status,
			BodyText:    msg.Text,
			BodyHTML:    msg.HTML,
			SizeBytes:   int64(len(msg.Text) + len(msg.HTML)),
			Recipients:  recipients,
			ProcessedAt: &processed,
		}
		if _, err := s.store.InsertMailMessage(ctx, record); err != nil {
			s.logger.Warn("record invitation", zap.String("activity_id", event.ID), zap.Error(err))
		}
	})
}
