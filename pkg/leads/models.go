package leads

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
)

// Lead notification statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Lead is a completed conversation.
type Lead struct {
	ID        string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SessionID  string     `gorm:"type:varchar(50);index:idx_lead_session" json:"session_id"`
	Name       string     `gorm:"type:varchar(255)"                      json:"name,omitempty"`
	Email      string     `gorm:"type:varchar(255)"                      json:"email,omitempty"`
	Phone      string     `gorm:"type:varchar(64)"                       json:"phone,omitempty"`
	Answers    Answers    `gorm:"type:text"                              json:"answers"`
	Status     string     `gorm:"type:varchar(20);not null;index"        json:"status"`
	Error      string     `gorm:"type:text"                              json:"error,omitempty"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

func (Lead) TableName() string { return "leads" }

// BeforeCreate assigns an id to new rows.
func (l *Lead) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = xid.New().String()
	}
	return nil
}

// NewLead builds a pending lead from conversation answers.
func NewLead(sessionID string, answers map[string]string) *Lead {
	return &Lead{
		SessionID: sessionID,
		Name:      answers["name"],
		Email:     answers["email"],
		Phone:     answers["phone"],
		Answers:   Answers(answers),
		Status:    StatusPending,
	}
}

// Answers stores the answer map as a JSON column.
type Answers map[string]string

func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Answers) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = Answers{}
		return nil
	default:
		return fmt.Errorf("answers: unsupported column type %T", src)
	}
}
