package sqlite

// Schema DDL. A row whose lineage_root_id is NULL is pending: it exists only
// inside the create transaction, or after a crash of an older writer, and is
// never returned to readers.
const (
	createContributions = `CREATE TABLE IF NOT EXISTS contributions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    share_token TEXT NOT NULL UNIQUE,
    parent_contribution_id INTEGER,
    lineage_root_id INTEGER,
    image_prompt TEXT,
    image_filename TEXT NOT NULL UNIQUE,
    image_description TEXT,
    survey_question_1 TEXT,
    survey_question_2 TEXT,
    survey_question_3 TEXT,
    survey_answer_1 TEXT,
    survey_answer_2 TEXT,
    survey_answer_3 TEXT,
    contributor_user_agent TEXT,
    latitude REAL,
    longitude REAL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (parent_contribution_id) REFERENCES contributions(id),
    FOREIGN KEY (lineage_root_id) REFERENCES contributions(id)
);`
)

// Index DDL for the lookups the resolver and listings perform.
const (
	idxContributionsParent = `CREATE INDEX IF NOT EXISTS idx_contributions_parent ON contributions(parent_contribution_id);`
	idxContributionsRoot   = `CREATE INDEX IF NOT EXISTS idx_contributions_root ON contributions(lineage_root_id);`
)

// schemaDDL lists all statements applied on Attach, in dependency order.
var schemaDDL = []string{
	createContributions,
	idxContributionsParent,
	idxContributionsRoot,
}
