package db

import (
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/pytutor/pytutor/internal/models"
	"github.com/pytutor/pytutor/internal/tutor"
)

// Connect opens the database and migrates the schema.
// A DSN containing "@tcp(" is treated as MySQL; anything else as a sqlite path.
func Connect(dsn string) *gorm.DB {
	var dialector gorm.Dialector
	if strings.Contains(dsn, "@tcp(") {
		dialector = mysql.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&tutor.Thread{},
		&tutor.Message{},
		&tutor.Job{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	return gdb
}
