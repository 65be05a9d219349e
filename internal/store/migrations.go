package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Profiles table - committed neutral poses, one row per calibration
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			neutral_yaw REAL NOT NULL,
			neutral_pitch REAL NOT NULL,
			thresholds TEXT NOT NULL DEFAULT '{}',
			sensitivity REAL NOT NULL DEFAULT 1.0,
			samples INTEGER NOT NULL,
			spread REAL NOT NULL DEFAULT 0,
			calibrated_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME
		)`,

		// Bindings table - plugin actions run when a gesture is accepted
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			gesture TEXT NOT NULL CHECK(gesture IN ('NONE', 'MOVE_LEFT', 'MOVE_RIGHT', 'JUMP', 'DUCK')),
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(name)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_gesture ON bindings(gesture)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
