package postgresql

const migrationsTable = "ruleflow_schema_migrations"

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_store (
				namespace VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (namespace, id)
			);
		`,
		2: `
			CREATE INDEX idx_workflow_store_created_at
				ON workflow_store (namespace, ((data->>'created_at')));
		`,
	}
}
