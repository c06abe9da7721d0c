package app

import (
	"context"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/search"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"go.uber.org/zap"
)

type ContactInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Position    string `json:"position" validate:"max=255"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	Phone       string `json:"phone" validate:"max=50"`
	IsMain      bool   `json:"is_main"`
	ContactType string `json:"contact_type" validate:"omitempty,oneof=legal_representative court_officer individual"`
}

type UpdateContactInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Position    *string `json:"position" validate:"omitempty,max=255"`
	Email       *string `json:"email" validate:"omitempty,email,max=255"`
	Phone       *string `json:"phone" validate:"omitempty,max=50"`
	IsMain      *bool   `json:"is_main"`
	ContactType *string `json:"contact_type" validate:"omitempty,oneof=legal_representative court_officer individual"`
}

type CreateClientInput struct {
	Type           string        `json:"type" validate:"required,oneof=legal individual court"`
	Name           string        `json:"name" validate:"required,max=255"`
	ShortName      string        `json:"short_name" validate:"max=255"`
	INN            string        `json:"inn" validate:"omitempty,inn"`
	Email          string        `json:"email" validate:"omitempty,email,max=255"`
	Phone          string        `json:"phone" validate:"max=50"`
	LegalAddress   string        `json:"legal_address" validate:"max=500"`
	ActualAddress  string        `json:"actual_address" validate:"max=500"`
	InitialContact *ContactInput `json:"initial_contact"`
}

type UpdateClientInput struct {
	Type          *string `json:"type" validate:"omitempty,oneof=legal individual court"`
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	ShortName     *string `json:"short_name" validate:"omitempty,max=255"`
	INN           *string `json:"inn" validate:"omitempty,inn"`
	Email         *string `json:"email" validate:"omitempty,email,max=255"`
	Phone         *string `json:"phone" validate:"omitempty,max=50"`
	LegalAddress  *string `json:"legal_address" validate:"omitempty,max=500"`
	ActualAddress *string `json:"actual_address" validate:"omitempty,max=500"`
}

func requireClientWrite(actor Actor) error {
	if !rbac.Can(actor.Role, rbac.ActionWriteClient) {
		return forbidden("Experts cannot modify clients")
	}
	return nil
}

func (s *Service) ListClients(ctx context.Context, actor Actor, filter store.ClientFilter) (ClientListView, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, store.DefaultPageSize)
	filter.CompanyID, filter.Page, filter.Limit = actor.CompanyID, page, limit

	items, total, err := s.store.ListClients(ctx, filter)
	if err != nil {
		return ClientListView{}, err
	}
	data := make([]ClientView, 0, len(items))
	for _, c := range items {
		data = append(data, clientView(c))
	}
	return ClientListView{Data: data, Pagination: newPagination(total, page, limit)}, nil
}

// SuggestClients matches name or short name by prefix.
func (s *Service) SuggestClients(ctx context.Context, actor Actor, q string) ([]ClientView, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, badRequest("Query must not be empty")
	}
	items, err := s.store.SuggestClients(ctx, actor.CompanyID, q, suggestLimit)
	if err != nil {
		return nil, err
	}
	out := make([]ClientView, 0, len(items))
	for _, c := range items {
		out = append(out, clientView(c))
	}
	return out, nil
}

func (s *Service) GetClient(ctx context.Context, actor Actor, clientID string) (ClientView, error) {
	c, err := s.store.GetClient(ctx, actor.CompanyID, clientID)
	if err != nil {
		return ClientView{}, orNotFound(err, "Client not found")
	}
	return clientView(c), nil
}

func (s *Service) CreateClient(ctx context.Context, actor Actor, input CreateClientInput) (ClientView, error) {
	if err := requireClientWrite(actor); err != nil {
		return ClientView{}, err
	}
	if err := validateInput(input); err != nil {
		return ClientView{}, err
	}
	var contact *store.Contact
	if input.InitialContact != nil {
		if err := validateInput(input.InitialContact); err != nil {
			return ClientView{}, err
		}
		c := contactFromInput(*input.InitialContact)
		contact = &c
	}

	created, err := s.store.InsertClient(ctx, store.Client{
		CompanyID:     actor.CompanyID,
		Type:          input.Type,
		Name:          strings.TrimSpace(input.Name),
		ShortName:     input.ShortName,
		INN:           input.INN,
		Email:         input.Email,
		Phone:         input.Phone,
		LegalAddress:  input.LegalAddress,
		ActualAddress: input.ActualAddress,
	}, contact)
	if err != nil {
		return ClientView{}, err
	}
	s.indexClient(created)
	return clientView(created), nil
}

func (s *Service) UpdateClient(ctx context.Context, actor Actor, clientID string, input UpdateClientInput) (ClientView, error) {
	if err := requireClientWrite(actor); err != nil {
		return ClientView{}, err
	}
	if err := validateInput(input); err != nil {
		return ClientView{}, err
	}
	item, err := s.store.GetClient(ctx, actor.CompanyID, clientID)
	if err != nil {
		return ClientView{}, orNotFound(err, "Client not found")
	}
	oldName := item.Name

	for _, f := range []struct {
		dst *string
		v   *string
	}{
		{&item.Type, input.Type},
		{&item.Name, input.Name},
		{&item.ShortName, input.ShortName},
		{&item.INN, input.INN},
		{&item.Email, input.Email},
		{&item.Phone, input.Phone},
		{&item.LegalAddress, input.LegalAddress},
		{&item.ActualAddress, input.ActualAddress},
	} {
		if f.v != nil {
			*f.dst = *f.v
		}
	}

	updated, err := s.store.UpdateClient(ctx, item)
	if err != nil {
		return ClientView{}, orNotFound(err, "Client not found")
	}
	updated.Contacts = item.Contacts
	updated.TotalCases, updated.ActiveCases = item.TotalCases, item.ActiveCases
	s.indexClient(updated)
	if updated.Name != oldName {
		s.reindexClientCases(ctx, actor.CompanyID, clientID)
	}
	return clientView(updated), nil
}

func (s *Service) DeleteClient(ctx context.Context, actor Actor, clientID string) error {
	if err := requireClientWrite(actor); err != nil {
		return err
	}
	caseIDs, deleted, err := s.store.DeleteClient(ctx, actor.CompanyID, clientID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Client not found")
	}
	if s.search != nil {
		for _, id := range caseIDs {
			s.search.DeleteCase(id)
		}
		s.search.DeleteClient(clientID)
	}
	return nil
}

// reindexClientCases refreshes the client name stored on indexed cases.
func (s *Service) reindexClientCases(ctx context.Context, companyID, clientID string) {
	if s.search == nil {
		return
	}
	cases, err := s.store.ListClientCases(ctx, companyID, clientID)
	if err != nil {
		s.logger.Warn("reindex client cases", zap.String("client_id", clientID), zap.Error(err))
		return
	}
	for _, c := range cases {
		s.indexCase(companyID, c)
	}
}

func contactFromInput(in ContactInput) store.Contact {
	return store.Contact{
		Name:        strings.TrimSpace(in.Name),
		Position:    in.Position,
		Email:       in.Email,
		Phone:       in.Phone,
		IsMain:      in.IsMain,
		ContactType: in.ContactType,
	}
}

// writableClient checks write access and that the client belongs to the
// caller's company.
func (s *Service) writableClient(ctx context.Context, actor Actor, clientID string) error {
	if err := requireClientWrite(actor); err != nil {
		return err
	}
	if _, err := s.store.GetClient(ctx, actor.CompanyID, clientID); err != nil {
		return orNotFound(err, "Client not found")
	}
	return nil
}

func (s *Service) CreateContact(ctx context.Context, actor Actor, clientID string, input ContactInput) (ContactView, error) {
	if err := validateInput(input); err != nil {
		return ContactView{}, err
	}
	if err := s.writableClient(ctx, actor, clientID); err != nil {
		return ContactView{}, err
	}
	item := contactFromInput(input)
	item.ClientID = clientID
	created, err := s.store.InsertContact(ctx, item)
	if err != nil {
		return ContactView{}, err
	}
	return contactView(created), nil
}

func (s *Service) UpdateContact(ctx context.Context, actor Actor, clientID, contactID string, input UpdateContactInput) (ContactView, error) {
	if err := validateInput(input); err != nil {
		return ContactView{}, err
	}
	if err := s.writableClient(ctx, actor, clientID); err != nil {
		return ContactView{}, err
	}
	item, err := s.store.GetContact(ctx, clientID, contactID)
	if err != nil {
		return ContactView{}, orNotFound(err, "Contact not found")
	}
	if input.Name != nil {
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Position != nil {
		item.Position = *input.Position
	}
	if input.Email != nil {
		item.Email = *input.Email
	}
	if input.Phone != nil {
		item.Phone = *input.Phone
	}
	if input.IsMain != nil {
		item.IsMain = *input.IsMain
	}
	if input.ContactType != nil {
		item.ContactType = *input.ContactType
	}
	updated, err := s.store.UpdateContact(ctx, item)
	if err != nil {
		return ContactView{}, orNotFound(err, "Contact not found")
	}
	return contactView(updated), nil
}

func (s *Service) DeleteContact(ctx context.Context, actor Actor, clientID, contactID string) error {
	if err := s.writableClient(ctx, actor, clientID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteContact(ctx, clientID, contactID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Contact not found")
	}
	return nil
}

func clientRecord(c store.Client) search.ClientRecord {
	return search.ClientRecord{
		ID:        c.ID,
		CompanyID: c.CompanyID,
		Name:      c.Name,
		ShortName: c.ShortName,
		INN:       c.INN,
		Email:     c.Email,
		Type:      c.Type,
	}
}

func (s *Service) indexClient(c store.Client) {
	if s.search != nil {
		s.search.IndexClient(clientRecord(c))
	}
}
