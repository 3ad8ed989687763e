package storage

// migrations is the ordered list of idempotent schema statements applied on
// every Open. Additive only: never rewritten in place once released.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		repo_path TEXT NOT NULL UNIQUE,
		github_url TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL,
		machine_id TEXT NOT NULL,
		source TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title TEXT,
		status TEXT NOT NULL,
		jsonl_path TEXT,
		summary_markdown TEXT,
		compact_markdown TEXT,
		git_branch TEXT,
		parent_session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
		agent_depth INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		transcript_processed INTEGER NOT NULL DEFAULT 0,
		UNIQUE(external_id, machine_id, source)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_session_id)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		seq_num INTEGER NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		task_type TEXT NOT NULL DEFAULT 'task',
		category TEXT,
		parent_task_id TEXT REFERENCES tasks(id) ON DELETE CASCADE,
		commits TEXT,
		validation_criteria TEXT,
		validation_status TEXT,
		expansion_status TEXT,
		expansion_context TEXT,
		requires_user_review INTEGER NOT NULL DEFAULT 0,
		labels TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(project_id, seq_num)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,

	`CREATE TABLE IF NOT EXISTS task_dependencies (
		id TEXT PRIMARY KEY,
		from_task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		to_task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		dep_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(from_task_id, to_task_id, dep_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_deps_from ON task_dependencies(from_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_deps_to ON task_dependencies(to_task_id)`,

	`CREATE TABLE IF NOT EXISTS workflow_states (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		workflow_name TEXT NOT NULL,
		step TEXT NOT NULL,
		step_entered_at TEXT NOT NULL,
		step_action_count INTEGER NOT NULL DEFAULT 0,
		total_action_count INTEGER NOT NULL DEFAULT 0,
		observations TEXT,
		variables TEXT,
		context_injected INTEGER NOT NULL DEFAULT 0,
		reflection_pending INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (session_id, workflow_name)
	)`,

	`CREATE TABLE IF NOT EXISTS pipeline_executions (
		id TEXT PRIMARY KEY,
		pipeline_name TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		inputs_json TEXT,
		outputs_json TEXT,
		resume_token TEXT,
		session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
		parent_execution_id TEXT REFERENCES pipeline_executions(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_exec_project ON pipeline_executions(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_exec_status ON pipeline_executions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_exec_parent ON pipeline_executions(parent_execution_id)`,

	`CREATE TABLE IF NOT EXISTS step_executions (
		id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL REFERENCES pipeline_executions(id) ON DELETE CASCADE,
		step_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		input_json TEXT,
		output_json TEXT,
		error TEXT,
		approval_token TEXT,
		approved_by TEXT,
		approved_at TEXT,
		UNIQUE(execution_id, step_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_step_exec_execution ON step_executions(execution_id)`,

	`CREATE TABLE IF NOT EXISTS cron_jobs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		schedule_type TEXT NOT NULL,
		cron_expr TEXT,
		interval_seconds INTEGER,
		run_at TEXT,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		action_type TEXT NOT NULL,
		action_config TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		next_run_at TEXT,
		last_run_at TEXT,
		last_status TEXT,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(project_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cron_jobs_due ON cron_jobs(enabled, next_run_at)`,

	`CREATE TABLE IF NOT EXISTS cron_runs (
		id TEXT PRIMARY KEY,
		cron_job_id TEXT NOT NULL REFERENCES cron_jobs(id) ON DELETE CASCADE,
		triggered_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		status TEXT NOT NULL,
		output TEXT,
		error TEXT,
		agent_run_id TEXT,
		pipeline_execution_id TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cron_runs_job ON cron_runs(cron_job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cron_runs_created ON cron_runs(created_at)`,

	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		memory_type TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_session_id TEXT,
		tags TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type)`,

	`CREATE TABLE IF NOT EXISTS prompts (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		tier TEXT NOT NULL,
		project_id TEXT,
		name TEXT,
		description TEXT,
		version TEXT,
		category TEXT,
		content TEXT NOT NULL,
		variables TEXT,
		source_file TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(path, tier, project_id)
	)`,

	`CREATE TABLE IF NOT EXISTS mcp_servers (
		id TEXT PRIMARY KEY,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		transport TEXT NOT NULL,
		command TEXT,
		args TEXT,
		url TEXT,
		env TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(project_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS tool_metrics (
		id TEXT PRIMARY KEY,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		server_name TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		call_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		total_latency_ms INTEGER NOT NULL DEFAULT 0,
		avg_latency_ms REAL NOT NULL DEFAULT 0,
		last_called_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(project_id, server_name, tool_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_metrics_server ON tool_metrics(server_name)`,

	`CREATE TABLE IF NOT EXISTS worktrees (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		branch_name TEXT NOT NULL,
		base_branch TEXT,
		session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		removed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_worktrees_project ON worktrees(project_id)`,
}
