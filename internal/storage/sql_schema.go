package storage

var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS vendors (
		id INTEGER PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		pricing_url TEXT NOT NULL DEFAULT '',
		models_list_url TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		use_case TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		id INTEGER PRIMARY KEY,
		position INTEGER NOT NULL,
		system_name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		category_id INTEGER NOT NULL,
		vendor_id INTEGER NOT NULL,
		host TEXT NOT NULL DEFAULT '',
		capability_tier TEXT NOT NULL DEFAULT '',
		modality TEXT NOT NULL DEFAULT '',
		parameters_b DOUBLE PRECISION,
		context_window INTEGER,
		token_limit INTEGER,
		precision_format TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		release_date TEXT NOT NULL DEFAULT '',
		is_open_source BOOLEAN NOT NULL DEFAULT FALSE,
		is_hidden BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS pricing (
		id INTEGER PRIMARY KEY,
		model_id INTEGER NOT NULL,
		input_text DOUBLE PRECISION NOT NULL,
		output_text DOUBLE PRECISION NOT NULL,
		finetuning_input DOUBLE PRECISION,
		finetuning_output DOUBLE PRECISION,
		training_cost DOUBLE PRECISION,
		flags TEXT NOT NULL DEFAULT ''
	)`,
}

const postgresHistoryTable = `CREATE TABLE IF NOT EXISTS pricing_history (
	id BIGSERIAL PRIMARY KEY,
	snapshot_id TEXT NOT NULL,
	model_id INTEGER NOT NULL,
	input_text DOUBLE PRECISION NOT NULL,
	output_text DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

const sqliteHistoryTable = `CREATE TABLE IF NOT EXISTS pricing_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id TEXT NOT NULL,
	model_id INTEGER NOT NULL,
	input_text DOUBLE PRECISION NOT NULL,
	output_text DOUBLE PRECISION NOT NULL,
	recorded_at DATETIME NOT NULL
)`

const historyIndex = `CREATE INDEX IF NOT EXISTS idx_pricing_history_model ON pricing_history(model_id, recorded_at)`

func schemaStatements(driver string) []string {
	history := sqliteHistoryTable
	if driver == DriverPostgres {
		history = postgresHistoryTable
	}
	stmts := append([]string(nil), tableStatements...)
	return append(stmts, history, historyIndex)
}
