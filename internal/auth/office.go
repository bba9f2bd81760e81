package auth

import "context"

// AllOffices is the office claim that grants every office.
const AllOffices = "*"

// EnsureOffice verifies the caller may act on officeID. Requests without an
// identity in context pass, matching exempt routes.
func EnsureOffice(ctx context.Context, officeID string) error {
	caller := OfficeIDFromContext(ctx)
	if caller == "" || caller == AllOffices {
		return nil
	}
	if officeID == "" || caller != officeID {
		return ErrOfficeMismatch
	}
	return nil
}
