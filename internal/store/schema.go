package store

// Schema DDL. Every statement is idempotent so InitSchema can run on each
// startup. The numeric article id is an arena-style index local to one store
// file: it orders the crawl backlog (FIFO by insertion) but has no meaning in
// any other store, which is why the merger re-resolves identity by title.
const (
	createArticles = `CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT UNIQUE NOT NULL,
    processed BOOLEAN NOT NULL DEFAULT FALSE,
    last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	createLinks = `CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_article_id INTEGER,
    to_article_title TEXT,
    FOREIGN KEY (from_article_id) REFERENCES articles (id),
    UNIQUE(from_article_id, to_article_title)
);`

	// progress is reserved for resumption metadata. Nothing writes it today;
	// the table exists so older and newer store files stay schema-compatible.
	createProgress = `CREATE TABLE IF NOT EXISTS progress (
    key TEXT PRIMARY KEY,
    value TEXT
);`
)

var schemaDDL = []string{createArticles, createLinks, createProgress}
