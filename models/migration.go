package models

import (
	"log"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Fixture{},
		&MaterialTransaction{},
		&SerialRecord{},
		&DatecodeBucket{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
