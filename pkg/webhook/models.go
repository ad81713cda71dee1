package webhook

import (
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
)

// Endpoint is a webhook target that receives lead events.
type Endpoint struct {
	ID     string
	URL    string
	Secret string
}

// Delivery attempt statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DeliveryAttempt records one attempt to deliver an event to an endpoint.
type DeliveryAttempt struct {
	ID        string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	WebhookID     string `gorm:"type:varchar(50);not null;index:idx_da_webhook" json:"webhook_id"`
	EventID       string `gorm:"type:varchar(50);not null"                       json:"event_id"`
	EventType     string `gorm:"type:varchar(100);not null"                      json:"event_type"`
	SessionID     string `gorm:"type:varchar(50);index:idx_da_session"           json:"session_id"`
	RequestBody   string `gorm:"type:text"                                       json:"-"`
	ResponseCode  int    `gorm:"default:0"                                       json:"response_code"`
	ResponseBody  string `gorm:"type:text"                                       json:"-"`
	AttemptNumber int    `gorm:"default:1"                                       json:"attempt_number"`
	Status        string `gorm:"type:varchar(20);not null;index:idx_da_status"   json:"status"`
	Error         string `gorm:"type:text"                                       json:"error,omitempty"`
	DurationMs    int64  `gorm:"default:0"                                       json:"duration_ms"`
}

func (DeliveryAttempt) TableName() string { return "delivery_attempts" }

// BeforeCreate assigns an id to new rows.
func (da *DeliveryAttempt) BeforeCreate(*gorm.DB) error {
	if da.ID == "" {
		da.ID = xid.New().String()
	}
	return nil
}

// DeadLetter holds events that exhausted all delivery retries.
type DeadLetter struct {
	ID        string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	WebhookID  string `gorm:"type:varchar(50);not null;index:idx_dl_webhook" json:"webhook_id"`
	EventID    string `gorm:"type:varchar(50);not null"                       json:"event_id"`
	EventType  string `gorm:"type:varchar(100);not null"                      json:"event_type"`
	Payload    string `gorm:"type:text;not null"                              json:"payload"`
	LastError  string `gorm:"type:text"                                       json:"last_error"`
	Attempts   int    `gorm:"default:0"                                       json:"attempts"`
	Replayable bool   `gorm:"default:true"                                    json:"replayable"`
}

func (DeadLetter) TableName() string { return "dead_letters" }

// BeforeCreate assigns an id to new rows.
func (dl *DeadLetter) BeforeCreate(*gorm.DB) error {
	if dl.ID == "" {
		dl.ID = xid.New().String()
	}
	return nil
}
