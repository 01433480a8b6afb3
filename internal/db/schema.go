package db

// Schema creates the notes table. AUTOINCREMENT keeps ids monotonic even
// after the table has been cleared.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0 CHECK (completed IN (0, 1))
);
`
