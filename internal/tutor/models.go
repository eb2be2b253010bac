package tutor

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Thread struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ThreadID  string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"thread_id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Provider  string    `gorm:"type:varchar(32);not null" json:"provider"`
	Model     string    `gorm:"type:varchar(64);not null" json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Thread) TableName() string { return "tutor_threads" }

// Message is one transcript entry. The auto-increment id is the sequence:
// load order within a thread is ascending id, nothing else is trusted for ordering.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID  string    `gorm:"type:varchar(26);not null;index" json:"thread_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "tutor_messages" }
