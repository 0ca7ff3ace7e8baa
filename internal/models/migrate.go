package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema for every table this core owns
// or reads. Unique indexes on leases.ip and sessions.session_id are part of
// the allocator's and session manager's correctness, not just performance.
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&SubscriberGroup{},
		&Service{},
		&Subscriber{},
		&Switch{},
		&SwitchPort{},
		&Nas{},
		&IPPool{},
		&Lease{},
		&Session{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed successfully")
	return nil
}
