package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepreport/internal/config"
	"deepreport/internal/models"
)

func testConfig(url string) *config.Config {
	cfg, _ := config.New()
	cfg.Database.URL = url
	cfg.Database.MaxOpenConns = 1
	cfg.Database.ConnMaxLifetime = time.Minute
	return cfg
}

func TestInit(t *testing.T) {
	t.Run("Should open sqlite and migrate all tables", func(t *testing.T) {
		db, err := Init(testConfig("sqlite://:memory:"))
		require.NoError(t, err)
		defer Close(db)

		for _, table := range []interface{}{
			&models.User{}, &models.ReportType{}, &models.Report{},
			&models.GoogleToken{}, &models.ScheduledJob{}, &models.TaskProgress{},
		} {
			assert.True(t, db.Migrator().HasTable(table))
		}
	})

	t.Run("Should reject unknown URL schemes", func(t *testing.T) {
		_, err := Init(testConfig("mysql://localhost/db"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database URL format")
	})
}
