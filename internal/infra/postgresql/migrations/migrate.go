package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createSearchBatches(),
		createFetchTasks(),
		createFlightRecords(),
		createPackages(),
		createRoutes(),
		createAdConfigs(),
	})

	return m.Migrate()
}

func createSearchBatches() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_search_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_search_batches_status_category ON search_batches (status, category)`,
				`CREATE INDEX IF NOT EXISTS idx_search_batches_sweep_id ON search_batches (sweep_id) WHERE sweep_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_search_batches_route ON search_batches (origin, destination, depart_date)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}

func createFetchTasks() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_fetch_tasks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.FetchTaskModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_fetch_tasks_batch_id ON fetch_tasks (batch_id)`,
				`CREATE INDEX IF NOT EXISTS idx_fetch_tasks_retry ON fetch_tasks (next_retry_at) WHERE status = 'QUEUED'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.FetchTaskModel{})
		},
	}
}

func createFlightRecords() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_flight_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.FlightRecordModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_flight_records_batch_id ON flight_records (batch_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.FlightRecordModel{})
		},
	}
}

func createPackages() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_packages",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PackageModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_packages_batch_id ON packages (batch_id)`,
				`CREATE INDEX IF NOT EXISTS idx_packages_category_created ON packages (category, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PackageModel{})
		},
	}
}

func createRoutes() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_routes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RouteModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_origin_destination ON routes (origin, destination)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RouteModel{})
		},
	}
}

func createAdConfigs() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_ad_configs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.AdConfigModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AdConfigModel{})
		},
	}
}
