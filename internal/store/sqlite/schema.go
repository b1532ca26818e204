package sqlite

// Timestamps are stored as UTC unix nanoseconds so range filters and ordering
// stay numeric.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	summary TEXT NOT NULL DEFAULT '',
	summary_cache_key TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	published_at INTEGER
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	excerpt TEXT NOT NULL DEFAULT '',
	regenerate_excerpt INTEGER NOT NULL DEFAULT 0,
	article_type TEXT NOT NULL DEFAULT '',
	highlight INTEGER NOT NULL DEFAULT 0,
	cover_url TEXT,
	cover_alt TEXT,
	cover_width INTEGER,
	cover_height INTEGER,
	publication_date INTEGER,
	published_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS article_tags (
	article_id TEXT NOT NULL REFERENCES articles(document_id) ON DELETE CASCADE,
	tag_id TEXT NOT NULL REFERENCES tags(document_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	PRIMARY KEY (article_id, tag_id)
);

CREATE TABLE IF NOT EXISTS article_related (
	article_id TEXT NOT NULL REFERENCES articles(document_id) ON DELETE CASCADE,
	related_id TEXT NOT NULL REFERENCES articles(document_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	PRIMARY KEY (article_id, related_id)
);

CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT,
	thumbnail_alt TEXT,
	thumbnail_width INTEGER,
	thumbnail_height INTEGER,
	publication_date INTEGER,
	published_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS video_tags (
	video_id TEXT NOT NULL REFERENCES videos(document_id) ON DELETE CASCADE,
	tag_id TEXT NOT NULL REFERENCES tags(document_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	PRIMARY KEY (video_id, tag_id)
);

CREATE TABLE IF NOT EXISTS pointers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	publication_date INTEGER,
	published_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL UNIQUE,
	firstname TEXT NOT NULL DEFAULT '',
	lastname TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	company_website TEXT NOT NULL DEFAULT '',
	sponsorship_inquiry INTEGER NOT NULL DEFAULT 0,
	budget_range TEXT NOT NULL DEFAULT '',
	additional_info TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	published_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tags_updated_at ON tags(updated_at);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_article_tags_tag ON article_tags(tag_id);
`
