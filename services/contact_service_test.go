package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiostore/models"
)

func TestContactCreateAndList(t *testing.T) {
	db := newTestDB(t)
	svc := NewContactService(NewSQLExecutor(db), nil, "")
	ctx := context.Background()

	contact, err := svc.Create(ctx, models.CreateContactRequest{
		Name:    "Jamie",
		Email:   "jamie@example.com",
		Subject: "Licensing question",
		Message: "Can I use the samples commercially?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, contact.ID)

	contacts, total, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, contacts, 1)
	assert.Equal(t, "jamie@example.com", contacts[0].Email)
}

func TestContactValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewContactService(NewSQLExecutor(db), nil, "")
	ctx := context.Background()

	cases := []struct {
		name string
		req  models.CreateContactRequest
	}{
		{"missing name", models.CreateContactRequest{Email: "a@b.c", Message: "hi"}},
		{"missing email", models.CreateContactRequest{Name: "A", Message: "hi"}},
		{"missing message", models.CreateContactRequest{Name: "A", Email: "a@b.c"}},
		{"malformed email", models.CreateContactRequest{Name: "A", Email: "not-an-email", Message: "hi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, ErrInvalidContactInput)
		})
	}
}

func TestContactDelete(t *testing.T) {
	db := newTestDB(t)
	svc := NewContactService(NewSQLExecutor(db), nil, "")
	ctx := context.Background()

	contact, err := svc.Create(ctx, models.CreateContactRequest{
		Name:    "Sam",
		Email:   "sam@example.com",
		Message: "Hello",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, contact.ID))
	assert.ErrorIs(t, svc.Delete(ctx, contact.ID), ErrContactNotFound)
}
