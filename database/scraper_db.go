package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/utils"
)

type SiteID uint
type GroupID uint
type AuthorID uint
type ThreadID uint

// ScraperDB archives extracted threads in SQLite. It implements the same
// Persist contract as the JSON output sinks.
type ScraperDB struct {
	Filename         string
	DB               *sql.DB
	insertSiteStmt   string
	insertGroupStmt  string
	insertAuthorStmt string
	insertThreadStmt string
	insertPostStmt   string
}

// ThreadRow is one archived thread as listed by Threads.
type ThreadRow struct {
	URL       string
	Title     *string
	Posts     int
	Extracted time.Time
}

// PostMatch is one archived post returned by SearchPosts.
type PostMatch struct {
	ThreadURL string
	Title     *string
	Post      model.Post
}

// AuthorRow is one author as listed by Authors.
type AuthorRow struct {
	Hostname string
	Username string
	Posts    int
	Threads  int
}

// GroupRow is one archived group as listed by Groups.
type GroupRow struct {
	URL           string
	Threads       int
	LastExtracted time.Time
}

var registerDriver sync.Once

func regex(re, s string) (bool, error) {
	return regexp.MatchString(re, s)
}

func OpenScraperDB(path string) (sdb *ScraperDB, err error) {
	registerDriver.Do(func() {
		sql.Register("sqlite3_regex",
			&sqlite3.SQLiteDriver{
				ConnectHook: func(conn *sqlite3.SQLiteConn) error {
					return conn.RegisterFunc("regexp", regex, true)
				},
			})
	})

	var existingDB bool
	if existingDB, err = utils.PathExists(path); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	db, err := sql.Open("sqlite3_regex", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	sdb = &ScraperDB{Filename: path, DB: db}
	if !existingDB {
		if err = sdb.initTables(); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: loading schema: %v", model.ErrPersistence, err)
		}
	}
	sdb.initSQLStatements()
	return sdb, nil
}

func (sdb *ScraperDB) Close() {
	sdb.DB.Close()
}

type RowsReceiver func(*sql.Rows) bool

func (sdb *ScraperDB) ForEachRow(receiver RowsReceiver, stmt string, params ...any) error {
	rows, err := sdb.DB.Query(stmt, params...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if !receiver(rows) {
			break
		}
	}
	return rows.Err()
}

// Persist stores t under the group at origin. The thread row is upserted by
// URL and its posts are replaced, so re-extraction never duplicates.
func (sdb *ScraperDB) Persist(origin string, t model.Thread) error {
	if origin == "" {
		origin = t.URL
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("%w: bad origin %q: %v", model.ErrPersistence, origin, err)
	}

	tx, err := sdb.DB.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	defer tx.Rollback()

	siteId, groupId, err := sdb.insertOrUpdateGroup(tx, originURL)
	if err != nil {
		return fmt.Errorf("%w: group %s: %v", model.ErrPersistence, origin, err)
	}
	threadId, err := sdb.insertOrUpdateThread(tx, groupId, t)
	if err != nil {
		return fmt.Errorf("%w: thread %s: %v", model.ErrPersistence, t.URL, err)
	}
	if err = sdb.replacePosts(tx, siteId, threadId, t.Posts); err != nil {
		return fmt.Errorf("%w: posts of %s: %v", model.ErrPersistence, t.URL, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

func (sdb *ScraperDB) insertOrUpdateGroup(tx *sql.Tx, origin *url.URL) (siteId SiteID, groupId GroupID, err error) {
	if err = tx.QueryRow(sdb.insertSiteStmt, origin.Hostname()).Scan(&siteId); err != nil {
		return
	}
	err = tx.QueryRow(sdb.insertGroupStmt, siteId, utils.TrimmedURL(origin).String(), time.Now().Unix()).Scan(&groupId)
	return
}

func (sdb *ScraperDB) insertOrUpdateThread(tx *sql.Tx, groupId GroupID, t model.Thread) (threadId ThreadID, err error) {
	err = tx.QueryRow(sdb.insertThreadStmt, groupId, t.Title, t.URL, time.Now().Unix()).Scan(&threadId)
	return
}

func (sdb *ScraperDB) getOrInsertAuthor(tx *sql.Tx, username string, siteId SiteID) (id AuthorID, err error) {
	err = tx.QueryRow(sdb.insertAuthorStmt, siteId, username).Scan(&id)
	return
}

func (sdb *ScraperDB) replacePosts(tx *sql.Tx, siteId SiteID, threadId ThreadID, posts []model.Post) error {
	if _, err := tx.Exec("DELETE FROM post WHERE thread_id = ?", threadId); err != nil {
		return err
	}
	for i, post := range posts {
		var authorId sql.NullInt64
		if post.Author != nil {
			id, err := sdb.getOrInsertAuthor(tx, *post.Author, siteId)
			if err != nil {
				return err
			}
			authorId = sql.NullInt64{Int64: int64(id), Valid: true}
		}
		if _, err := tx.Exec(sdb.insertPostStmt, threadId, i, authorId, post.Date, post.Content); err != nil {
			return err
		}
	}
	return nil
}

// Thread rebuilds an archived thread with its posts in page order.
func (sdb *ScraperDB) Thread(threadURL string) (t model.Thread, err error) {
	t = model.NewThread(threadURL)
	var threadId ThreadID
	row := sdb.DB.QueryRow("SELECT id, title FROM thread WHERE url = ?", threadURL)
	if err = row.Scan(&threadId, &t.Title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("thread %q not archived", threadURL)
		}
		return
	}

	stmt := `
		SELECT
			a.username, p.date, p.content
		FROM
			post p LEFT JOIN author a ON a.id = p.author_id
		WHERE
			p.thread_id = ?
		ORDER BY p.position`
	scanErr := sdb.ForEachRow(
		func(rows *sql.Rows) bool {
			var post model.Post
			if err = rows.Scan(&post.Author, &post.Date, &post.Content); err != nil {
				return false
			}
			t.Posts = append(t.Posts, post)
			return true
		}, stmt, threadId)
	if err == nil {
		err = scanErr
	}
	return
}

// Threads lists archived threads, most recently extracted first. An empty
// groupURL lists every group.
func (sdb *ScraperDB) Threads(groupURL string) (res []ThreadRow, err error) {
	stmt := `
		SELECT
			t.url, t.title, t.extracted, COUNT(p.id)
		FROM
			forum_group g
			JOIN thread t ON t.group_id = g.id
			LEFT JOIN post p ON p.thread_id = t.id
		WHERE
			? = '' OR g.url = ?
		GROUP BY t.id
		ORDER BY t.extracted DESC, t.url`

	if groupURL != "" {
		if u, perr := url.Parse(groupURL); perr == nil {
			groupURL = utils.TrimmedURL(u).String()
		}
	}

	scanErr := sdb.ForEachRow(
		func(rows *sql.Rows) bool {
			var row ThreadRow
			var extracted int64
			if err = rows.Scan(&row.URL, &row.Title, &extracted, &row.Posts); err != nil {
				return false
			}
			row.Extracted = time.Unix(extracted, 0)
			res = append(res, row)
			return true
		}, stmt, groupURL, groupURL)
	if err == nil {
		err = scanErr
	}
	return
}

// SearchPosts returns the posts whose content matches every pattern.
func (sdb *ScraperDB) SearchPosts(patterns []string) (res []PostMatch, err error) {
	for _, p := range patterns {
		if _, err = regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInput, err)
		}
	}

	stmt := `
		SELECT
			t.url, t.title, a.username, p.date, p.content
		FROM
			thread t
			JOIN post p ON p.thread_id = t.id
			LEFT JOIN author a ON a.id = p.author_id
		WHERE 1 = 1`

	exprs := make([]string, 0, len(patterns))
	anyArgs := make([]any, len(patterns))
	for i := range patterns {
		exprs = append(exprs, "AND p.content REGEXP ?")
		anyArgs[i] = patterns[i]
	}
	stmt = stmt + " " + strings.Join(exprs, " ") + `
		ORDER BY t.url, p.position`

	scanErr := sdb.ForEachRow(
		func(rows *sql.Rows) bool {
			var m PostMatch
			if err = rows.Scan(&m.ThreadURL, &m.Title, &m.Post.Author, &m.Post.Date, &m.Post.Content); err != nil {
				return false
			}
			res = append(res, m)
			return true
		}, stmt, anyArgs...)
	if err == nil {
		err = scanErr
	}
	return
}

// Authors lists the authors whose username matches every pattern, most
// prolific first.
func (sdb *ScraperDB) Authors(patterns []string) (res []AuthorRow, err error) {
	for _, p := range patterns {
		if _, err = regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInput, err)
		}
	}

	stmt := `
		SELECT
			s.hostname, a.username, COUNT(p.id) posts, COUNT(DISTINCT p.thread_id) threads
		FROM
			author a
			JOIN site s ON s.id = a.site_id
			JOIN post p ON p.author_id = a.id
		WHERE 1 = 1`

	exprs := make([]string, 0, len(patterns))
	anyArgs := make([]any, len(patterns))
	for i := range patterns {
		exprs = append(exprs, "AND a.username REGEXP ?")
		anyArgs[i] = patterns[i]
	}
	stmt = stmt + " " + strings.Join(exprs, " ") + `
		GROUP BY a.id
		ORDER BY posts DESC, a.username`

	scanErr := sdb.ForEachRow(
		func(rows *sql.Rows) bool {
			var row AuthorRow
			if err = rows.Scan(&row.Hostname, &row.Username, &row.Posts, &row.Threads); err != nil {
				return false
			}
			res = append(res, row)
			return true
		}, stmt, anyArgs...)
	if err == nil {
		err = scanErr
	}
	return
}

// Groups lists archived groups, most recently extracted first.
func (sdb *ScraperDB) Groups() (res []GroupRow, err error) {
	stmt := `
		SELECT
			g.url, g.last_extracted, COUNT(t.id)
		FROM
			forum_group g LEFT JOIN thread t ON t.group_id = g.id
		GROUP BY g.id
		ORDER BY g.last_extracted DESC, g.url`

	scanErr := sdb.ForEachRow(
		func(rows *sql.Rows) bool {
			var row GroupRow
			var extracted int64
			if err = rows.Scan(&row.URL, &extracted, &row.Threads); err != nil {
				return false
			}
			row.LastExtracted = time.Unix(extracted, 0)
			res = append(res, row)
			return true
		}, stmt)
	if err == nil {
		err = scanErr
	}
	return
}

func (sdb *ScraperDB) initTables() error {
	schema := `
CREATE TABLE site (
	id INTEGER NOT NULL PRIMARY KEY,
	hostname STRING UNIQUE
);

CREATE TABLE forum_group (
	id INTEGER NOT NULL PRIMARY KEY,
	site_id INTEGER NOT NULL,
	url TEXT UNIQUE,
	last_extracted INTEGER
);

CREATE TABLE author (
	id INTEGER NOT NULL PRIMARY KEY,
	site_id INTEGER NOT NULL,
	username TEXT,

	UNIQUE(site_id, username)
);

CREATE TABLE thread (
	id INTEGER NOT NULL PRIMARY KEY,
	group_id INTEGER NOT NULL,
	title TEXT,
	url TEXT UNIQUE,
	extracted INTEGER
);

CREATE TABLE post (
	id INTEGER NOT NULL PRIMARY KEY,
	thread_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	author_id INTEGER,
	date TEXT,
	content TEXT,

	UNIQUE(thread_id, position)
);
`
	_, err := sdb.DB.Exec(schema)
	return err
}

func (sdb *ScraperDB) initSQLStatements() {
	sdb.insertSiteStmt = `
		INSERT INTO site
			(hostname)
		VALUES
			(?)
		ON CONFLICT DO UPDATE SET
			hostname = hostname
		RETURNING id`

	sdb.insertGroupStmt = `
		INSERT INTO forum_group
			(site_id, url, last_extracted)
		VALUES
			(?, ?, ?)
		ON CONFLICT DO UPDATE SET
			last_extracted = excluded.last_extracted
		RETURNING id`

	sdb.insertAuthorStmt = `
		INSERT INTO author
			(site_id, username)
		VALUES
			(?, ?)
		ON CONFLICT DO UPDATE SET
			username = username
		RETURNING id`

	sdb.insertThreadStmt = `
		INSERT INTO thread
			(group_id, title, url, extracted)
		VALUES
			(?, ?, ?, ?)
		ON CONFLICT DO UPDATE SET
			group_id = excluded.group_id,
			title = excluded.title,
			extracted = excluded.extracted
		RETURNING id`

	sdb.insertPostStmt = `
		INSERT INTO post
			(thread_id, position, author_id, date, content)
		VALUES
			(?, ?, ?, ?, ?)`
}
