package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scene_files (
		id           UUID PRIMARY KEY,
		filename     TEXT NOT NULL,
		storage_key  TEXT NOT NULL,
		checksum     TEXT NOT NULL,
		size         BIGINT NOT NULL DEFAULT 0,
		application  TEXT NOT NULL,
		camera_count INTEGER NOT NULL DEFAULT 0,
		frame_range  JSONB NOT NULL DEFAULT '{}',
		metadata     JSONB NOT NULL DEFAULT '{}',
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS scene_files_checksum_idx ON scene_files (checksum)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id           UUID PRIMARY KEY,
		scene_id     UUID NOT NULL REFERENCES scene_files (id) ON DELETE CASCADE,
		status       TEXT NOT NULL,
		priority     INTEGER NOT NULL DEFAULT 5,
		progress     DOUBLE PRECISION NOT NULL DEFAULT 0,
		error_msg    TEXT NOT NULL DEFAULT '',
		warnings     TEXT[] NOT NULL DEFAULT '{}',
		retry_count  INTEGER NOT NULL DEFAULT 0,
		worker_id    TEXT NOT NULL DEFAULT '',
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		config       JSONB NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_scene_id_idx ON jobs (scene_id)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status, priority DESC, created_at)`,
	`CREATE TABLE IF NOT EXISTS outputs (
		id           UUID PRIMARY KEY,
		job_id       UUID NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
		scene_id     UUID NOT NULL REFERENCES scene_files (id) ON DELETE CASCADE,
		camera_name  TEXT NOT NULL,
		camera_index INTEGER NOT NULL,
		exporter     TEXT NOT NULL,
		application  TEXT NOT NULL,
		filename     TEXT NOT NULL,
		size         BIGINT NOT NULL DEFAULT 0,
		static       BOOLEAN NOT NULL DEFAULT TRUE,
		url          TEXT NOT NULL DEFAULT '',
		path         TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS outputs_scene_id_idx ON outputs (scene_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS outputs_job_filename_idx ON outputs (job_id, filename)`,
}
