// Package resolver performs placeholder substitution in outbound SMS and
// email templates. Tokens are replaced by literal string substitution over
// a fixed catalog, not a templating language: any token outside the known
// set passes through untouched.
package resolver

import (
	"fmt"
	"strings"

	"github.com/dojohq/crm-automation/internal/domain"
)

// Resolve substitutes the known placeholder tokens in template using the
// recipient's fields and the business settings snapshot. Recipient tokens
// with no backing data resolve to the empty string. All occurrences of each
// token are replaced.
func Resolve(template string, recipient domain.Recipient, settings domain.BusinessSettings) string {
	fullName := strings.TrimSpace(recipient.FirstName + " " + recipient.LastName)

	pairs := []string{
		"{{firstName}}", recipient.FirstName,
		"{{lastName}}", recipient.LastName,
		"{{name}}", fullName,
		"{{email}}", recipient.Email,
		"{{phone}}", recipient.Phone,
		"{{businessName}}", settings.BusinessName,
		"{{aiName}}", settings.AIName,
		"{{contactEmail}}", settings.ContactEmail,
		"{{contactPhone}}", settings.ContactPhone,
		"{{phoneNumber}}", settings.ContactPhone,
		"{{bookingLink}}", deepLink(settings.BaseURL, "book", recipient),
		"{{portalLink}}", deepLink(settings.BaseURL, "portal", recipient),
		"{{unsubscribeLink}}", deepLink(settings.BaseURL, "unsubscribe", recipient),
	}

	return strings.NewReplacer(pairs...).Replace(template)
}

// deepLink builds a recipient-scoped URL under the configured base URL.
func deepLink(baseURL, path string, r domain.Recipient) string {
	base := strings.TrimSuffix(baseURL, "/")
	return fmt.Sprintf("%s/%s?rt=%s&rid=%s", base, path, r.Type, r.ID)
}
