package resolver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dojohq/crm-automation/internal/domain"
)

func TestResolve(t *testing.T) {
	rid := uuid.MustParse("7b8a2c31-58f4-4d1a-9e0d-0f3a6c2b9d11")
	recipient := domain.Recipient{
		ID:        rid,
		Type:      domain.RecipientLead,
		FirstName: "Ann",
		LastName:  "Lee",
		Email:     "ann@example.com",
		Phone:     "+15555550123",
	}
	settings := domain.BusinessSettings{
		BusinessName: "Acme Dojo",
		AIName:       "Mia",
		ContactEmail: "front@acmedojo.com",
		ContactPhone: "+15555550199",
		BaseURL:      "https://app.acmedojo.com/",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "round trip",
			template: "{{firstName}} at {{businessName}}",
			want:     "Ann at Acme Dojo",
		},
		{
			name:     "all occurrences replaced",
			template: "Hi {{firstName}}! {{firstName}}, reply to {{aiName}}.",
			want:     "Hi Ann! Ann, reply to Mia.",
		},
		{
			name:     "full name token",
			template: "Welcome {{name}}",
			want:     "Welcome Ann Lee",
		},
		{
			name:     "unknown token passes through",
			template: "{{firstName}} {{notAToken}}",
			want:     "Ann {{notAToken}}",
		},
		{
			name:     "booking link built from base url",
			template: "Book here: {{bookingLink}}",
			want:     "Book here: https://app.acmedojo.com/book?rt=lead&rid=" + rid.String(),
		},
		{
			name:     "no tokens",
			template: "See you Saturday",
			want:     "See you Saturday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.template, recipient, settings)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMissingRecipientFields(t *testing.T) {
	recipient := domain.Recipient{ID: uuid.New(), Type: domain.RecipientStudent}
	settings := domain.BusinessSettings{BusinessName: "Acme Dojo"}

	got := Resolve("Hi {{firstName}}, welcome to {{businessName}}", recipient, settings)
	assert.Equal(t, "Hi , welcome to Acme Dojo", got)

	// Full name collapses to empty, not a stray space
	assert.Equal(t, "", Resolve("{{name}}", recipient, settings))
}
