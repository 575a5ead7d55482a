package database

import (
	"fmt"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
	// DeletedAt marks a revoked key; the row stays so the key cannot re-register
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// APIUsage represents the api_usage table
type APIUsage struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	KeyID        uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date         string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount int    `gorm:"default:0" json:"request_count"`
	TotalRooms   int    `gorm:"default:0" json:"total_rooms"`
	TotalMembers int    `gorm:"default:0" json:"total_members"`
	// Negotiations counts proposals returned by allocation passes
	Negotiations int `gorm:"default:0" json:"negotiations"`
	Responses    int `gorm:"default:0" json:"responses"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NegotiationRecord represents the negotiations table. Version backs
// optimistic concurrency for response updates.
type NegotiationRecord struct {
	ID                      string                             `gorm:"primaryKey;size:64"`
	RoomID                  string                             `gorm:"index:idx_room_block;not null"`
	BlockKey                string                             `gorm:"index:idx_room_block;not null"`
	Type                    string                             `gorm:"not null"`
	Status                  string                             `gorm:"index;not null"`
	WeekStartDate           string                             `gorm:"not null"`
	SlotInfo                models.SlotInfo                    `gorm:"serializer:json"`
	AvailableTimeSlots      []models.TimeSlotOption            `gorm:"serializer:json"`
	MemberSpecificTimeSlots map[string][]models.TimeSlotOption `gorm:"serializer:json"`
	ConflictingMembers      []models.ConflictingMember         `gorm:"serializer:json"`
	Participants            []string                           `gorm:"serializer:json"`
	Messages                []models.NegotiationMessage        `gorm:"serializer:json"`
	Version                 int                                `gorm:"not null;default:0"`
	CreatedAt               time.Time                          `gorm:"index"`
	UpdatedAt               time.Time
}

// TableName pins the table name
func (NegotiationRecord) TableName() string { return "negotiations" }

// ToModel converts the row into the API aggregate
func (r *NegotiationRecord) ToModel() *models.Negotiation {
	n := &models.Negotiation{
		ID:                      r.ID,
		RoomID:                  r.RoomID,
		BlockKey:                r.BlockKey,
		Type:                    models.NegotiationType(r.Type),
		AvailableTimeSlots:      r.AvailableTimeSlots,
		MemberSpecificTimeSlots: r.MemberSpecificTimeSlots,
		SlotInfo:                r.SlotInfo,
		ConflictingMembers:      r.ConflictingMembers,
		Participants:            r.Participants,
		Messages:                r.Messages,
		Status:                  models.NegotiationStatus(r.Status),
		WeekStartDate:           r.WeekStartDate,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
		Version:                 r.Version,
	}
	if n.Messages == nil {
		n.Messages = []models.NegotiationMessage{}
	}
	if n.AvailableTimeSlots == nil {
		n.AvailableTimeSlots = []models.TimeSlotOption{}
	}
	if n.MemberSpecificTimeSlots == nil {
		n.MemberSpecificTimeSlots = map[string][]models.TimeSlotOption{}
	}
	return n
}

// NegotiationFromModel converts the API aggregate into a row
func NegotiationFromModel(n *models.Negotiation) *NegotiationRecord {
	return &NegotiationRecord{
		ID:                      n.ID,
		RoomID:                  n.RoomID,
		BlockKey:                n.BlockKey,
		Type:                    string(n.Type),
		Status:                  string(n.Status),
		WeekStartDate:           n.WeekStartDate,
		SlotInfo:                n.SlotInfo,
		AvailableTimeSlots:      n.AvailableTimeSlots,
		MemberSpecificTimeSlots: n.MemberSpecificTimeSlots,
		ConflictingMembers:      n.ConflictingMembers,
		Participants:            n.Participants,
		Messages:                n.Messages,
		Version:                 n.Version,
		CreatedAt:               n.CreatedAt,
		UpdatedAt:               n.UpdatedAt,
	}
}

// InitDB opens Postgres when databaseURL is set and a SQLite file otherwise,
// then migrates the schema.
func InitDB(databaseURL, dataPath string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	cfg := &gorm.Config{}
	if databaseURL != "" {
		dialector = postgres.New(postgres.Config{
			DSN:                  databaseURL,
			PreferSimpleProtocol: true,
		})
		cfg.PrepareStmt = false
	} else {
		if dataPath == "" {
			dataPath = "coordination.db"
		}
		dialector = sqlite.Open(dataPath)
	}
	return Open(dialector, cfg)
}

// OpenMemory opens a private in-memory SQLite database, used by tests
func OpenMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	// Every new connection would see its own empty database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, Migrate(db)
}

// Open connects with the given dialector and runs the auto migration
func Open(dialector gorm.Dialector, cfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, Migrate(db)
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&APIKey{}, &APIUsage{}, &MasterUser{}, &NegotiationRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
