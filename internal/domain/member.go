package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// MaxUsernameLength is the longest username, in characters, a client may join with.
const MaxUsernameLength = 20

// MemberStatusOnline is the only status a live membership record can have.
const MemberStatusOnline = "online"

// Member is one membership record in a room. ConnectionID never leaves the
// session core.
type Member struct {
	Username     string
	ConnectionID string
	Status       string
	JoinedAt     time.Time
}

// MemberView is the client-facing projection of a Member.
type MemberView struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// View strips the connection id from m.
func (m Member) View() MemberView {
	return MemberView{Username: m.Username, Status: m.Status}
}

// JoinRequest is the payload of a join event.
type JoinRequest struct {
	Username  string `json:"username" validate:"required,max=20"`
	SecretKey string `json:"secretKey" validate:"required"`
}

// Normalize trims surrounding whitespace and applies NFC so that the same
// visible name always counts as the same number of characters.
func (r *JoinRequest) Normalize() {
	r.Username = norm.NFC.String(strings.TrimSpace(r.Username))
	r.SecretKey = strings.TrimSpace(r.SecretKey)
}

// Validate runs validation checks on the request using the defined tags and
// converts failures into a client-facing validation error.
func (r *JoinRequest) Validate() error {
	err := validatorInstance.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewValidationError("Invalid join request")
	}
	fe := fieldErrs[0]
	switch {
	case fe.Field() == "Username" && fe.Tag() == "required":
		return NewValidationError("Username is required")
	case fe.Field() == "Username" && fe.Tag() == "max":
		return NewValidationError("Username must be 20 characters or fewer")
	case fe.Field() == "SecretKey":
		return NewValidationError("Secret key is required")
	default:
		return NewValidationError("Invalid join request")
	}
}
