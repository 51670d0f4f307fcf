package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS flow_records (
		id                 BIGSERIAL PRIMARY KEY,
		source_ip          TEXT NOT NULL,
		source_port        INTEGER,
		destination_ip     TEXT NOT NULL,
		destination_port   INTEGER,
		transport          TEXT NOT NULL DEFAULT 'unknown',
		event_start        TIMESTAMPTZ NOT NULL,
		event_end          TIMESTAMPTZ,
		observer_hostname  TEXT,
		observer_ips       TEXT[] NOT NULL DEFAULT '{}',
		observer_geo_name  TEXT,
		process_name       TEXT,
		process_executable TEXT,
		user_agent         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flow_records_window ON flow_records (event_start, event_end)`,
	`CREATE INDEX IF NOT EXISTS idx_flow_records_pair ON flow_records (source_ip, destination_ip, event_start)`,

	`CREATE TABLE IF NOT EXISTS conntrack_events (
		id               BIGSERIAL PRIMARY KEY,
		agent_hostname   TEXT NOT NULL,
		actor_ip         TEXT NOT NULL,
		destination_ip   TEXT NOT NULL,
		target_ip        TEXT NOT NULL,
		transport        TEXT NOT NULL,
		source_port      INTEGER,
		destination_port INTEGER,
		event_time       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conntrack_actor ON conntrack_events (agent_hostname, actor_ip, event_time)`,

	`CREATE TABLE IF NOT EXISTS session_events (
		id         BIGSERIAL PRIMARY KEY,
		world      TEXT NOT NULL DEFAULT '',
		actor      TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_time TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_actor ON session_events (world, actor, event_time)`,

	`CREATE TABLE IF NOT EXISTS actors (
		name       TEXT PRIMARY KEY,
		actor_id   TEXT NOT NULL DEFAULT '',
		world      TEXT NOT NULL DEFAULT '',
		vpn_ip     TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS attribution_runs (
		id           UUID PRIMARY KEY,
		status       TEXT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		window_end   TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		duration_ms  BIGINT NOT NULL DEFAULT 0,
		edges        INTEGER NOT NULL DEFAULT 0,
		labeled      INTEGER NOT NULL DEFAULT 0,
		ambiguous    INTEGER NOT NULL DEFAULT 0,
		error        TEXT,
		summary      JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attribution_runs_started ON attribution_runs (started_at DESC)`,
}
