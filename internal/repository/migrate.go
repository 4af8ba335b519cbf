package repository

import "gorm.io/gorm"

// Entities lists every table the repositories own, in dependency order.
func Entities() []any {
	return []any{
		&ClientEntity{},
		&StaffUserEntity{},
		&ConversationEntity{},
		&MessageEntity{},
		&TransactionEntity{},
	}
}

// AutoMigrate creates the schema from the entities. Production uses the goose
// migrations; tests and local sqlite runs use this.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Entities()...)
}
