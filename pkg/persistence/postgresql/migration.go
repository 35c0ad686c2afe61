package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflows are stored as whole JSONB documents; name and tags are projected for listing.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				tags TEXT[] NOT NULL DEFAULT '{}',
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_name ON workflows(name);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_updated_at ON workflows(updated_at);
			CREATE INDEX idx_workflows_tags ON workflows USING GIN(tags);
		`,
		2: `
			-- Execution records written by the execution runtime.
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				document JSONB NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id, started_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);
		`,
	}
}
