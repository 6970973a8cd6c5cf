package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"audiostore/logger"
	"audiostore/mailer"
	"audiostore/models"
	"audiostore/utils"
)

var (
	// ErrContactNotFound is returned when the inquiry does not exist.
	ErrContactNotFound = errors.New("contact not found")
	// ErrInvalidContactInput is returned for malformed contact payloads.
	ErrInvalidContactInput = errors.New("invalid contact input")
)

// ContactService stores storefront inquiries and notifies the shop admin.
type ContactService interface {
	Create(ctx context.Context, req models.CreateContactRequest) (models.Contact, error)
	List(ctx context.Context, page, pageSize int) ([]models.Contact, int, error)
	Delete(ctx context.Context, id string) error
}

type contactService struct {
	db      SQLExecutor
	sender  mailer.Sender
	adminTo string
}

// NewContactService builds the contact service. sender/adminTo may be empty;
// inquiries are then stored without notification.
func NewContactService(db SQLExecutor, sender mailer.Sender, adminTo string) ContactService {
	return &contactService{db: db, sender: sender, adminTo: adminTo}
}

func (s *contactService) Create(ctx context.Context, req models.CreateContactRequest) (models.Contact, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Message) == "" {
		return models.Contact{}, fmt.Errorf("%w: name, email, and message are required", ErrInvalidContactInput)
	}
	if !strings.Contains(req.Email, "@") {
		return models.Contact{}, fmt.Errorf("%w: malformed email", ErrInvalidContactInput)
	}

	id, err := utils.GenerateID("ct")
	if err != nil {
		return models.Contact{}, err
	}

	now := utils.FormatDateTimeForDB(utils.NowUTC())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, email, subject, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, req.Name, req.Email, req.Subject, req.Message, now,
	)
	if err != nil {
		return models.Contact{}, err
	}

	contact := models.Contact{
		ID:        id,
		Name:      req.Name,
		Email:     req.Email,
		Subject:   req.Subject,
		Message:   req.Message,
		CreatedAt: now,
	}

	// Fire-and-forget: a failed notification never fails the inquiry.
	if s.sender != nil && s.adminTo != "" {
		go func(c models.Contact) {
			subject := "New contact inquiry: " + c.Subject
			body := fmt.Sprintf("From: %s <%s>\n\n%s\n", c.Name, c.Email, c.Message)
			if err := s.sender.Send(s.adminTo, subject, body); err != nil {
				logger.WithFields(map[string]interface{}{
					"contact_id": c.ID,
					"error":      err.Error(),
				}).Warn("Failed to send contact notification")
			}
		}(contact)
	}

	return contact, nil
}

func (s *contactService) List(ctx context.Context, page, pageSize int) ([]models.Contact, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, subject, message, created_at FROM contacts
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Subject, &c.Message, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}

	return contacts, total, rows.Err()
}

func (s *contactService) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM contacts WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrContactNotFound
	}
	return nil
}
