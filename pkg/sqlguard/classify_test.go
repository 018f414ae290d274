package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOne(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Class
	}{
		{"plain select", "SELECT * FROM notes", ClassRead},
		{"lowercase select", "select 1", ClassRead},
		{"values", "VALUES (1), (2)", ClassRead},
		{"insert", "INSERT INTO t VALUES (1)", ClassWrite},
		{"update", "UPDATE t SET a = 1", ClassWrite},
		{"delete", "DELETE FROM t", ClassWrite},
		{"replace", "REPLACE INTO t VALUES (1)", ClassWrite},
		{"create", "CREATE TABLE t (id INTEGER)", ClassDDL},
		{"drop", "DROP TABLE t", ClassDDL},
		{"alter", "ALTER TABLE t ADD COLUMN b TEXT", ClassDDL},
		{"truncate", "TRUNCATE TABLE t", ClassDDL},
		{"rename", "RENAME TABLE a TO b", ClassDDL},

		{"leading whitespace", "  \n\t\r SELECT 1", ClassRead},
		{"line comment", "-- just reading\nSELECT 1", ClassRead},
		{"block comment before insert", "/* x */\n\tINSERT INTO t VALUES (1)", ClassWrite},
		{"stacked comments", "/* a */ -- b\n/* c */ DELETE FROM t", ClassWrite},
		{"comment that looks like select", "/* SELECT */ DROP TABLE t", ClassDDL},
		{"line comment ending input", "SELECT 1 -- trailing", ClassRead},
		{"keyword inside string", "SELECT 'DROP TABLE t'", ClassRead},

		{"cte select", "WITH c AS (SELECT 1) SELECT * FROM c", ClassRead},
		{"cte insert", "WITH c AS (SELECT 1) INSERT INTO t SELECT * FROM c", ClassWrite},
		{"cte delete", "WITH c(id) AS (SELECT 1) DELETE FROM t WHERE id IN c", ClassWrite},
		{"cte update nested", "WITH a AS (SELECT (SELECT 1)), b AS (SELECT * FROM a) UPDATE t SET x = 1", ClassWrite},
		{"recursive cte", "WITH RECURSIVE r(n) AS (SELECT 1 UNION ALL SELECT n+1 FROM r WHERE n < 5) SELECT n FROM r", ClassRead},
		{"materialized cte", "WITH c AS MATERIALIZED (SELECT 1) INSERT INTO t SELECT * FROM c", ClassWrite},
		{"commented cte", "/* x */ WITH c AS (SELECT 1) -- y\n REPLACE INTO t SELECT * FROM c", ClassWrite},
		{"cte without statement", "WITH c AS (SELECT 1)", ClassUnknown},

		{"pragma bare read", "PRAGMA user_version", ClassRead},
		{"pragma table info", "PRAGMA table_info(notes)", ClassRead},
		{"pragma schema qualified", "PRAGMA main.table_info(notes)", ClassRead},
		{"pragma assignment", "PRAGMA user_version = 3", ClassWrite},
		{"pragma call form setter", "PRAGMA journal_mode(DELETE)", ClassWrite},
		{"pragma unlisted", "PRAGMA optimize", ClassWrite},

		{"explain select", "EXPLAIN SELECT 1", ClassRead},
		{"explain query plan insert", "EXPLAIN QUERY PLAN INSERT INTO t VALUES (1)", ClassWrite},

		{"begin", "BEGIN", ClassUnknown},
		{"attach", "ATTACH DATABASE 'x.db' AS x", ClassUnknown},
		{"vacuum", "VACUUM", ClassUnknown},
		{"empty", "", ClassUnknown},
		{"only comments", "/* nothing */ -- here", ClassUnknown},
		{"unterminated block comment", "/* SELECT 1", ClassUnknown},
		{"unterminated string", "SELECT 'oops", ClassUnknown},
		{"leading paren", "(SELECT 1)", ClassUnknown},

		{"mixed statements", "SELECT 1; DROP TABLE t", ClassUnknown},
		{"repeated reads", "SELECT 1; SELECT 2;", ClassRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOne(tt.query))
		})
	}
}

func TestClassifyStatements(t *testing.T) {
	t.Run("splits on top-level semicolons", func(t *testing.T) {
		classes := Classify("SELECT 1; INSERT INTO t VALUES (';'); CREATE TABLE x (a)")
		assert.Equal(t, []Class{ClassRead, ClassWrite, ClassDDL}, classes)
	})

	t.Run("keeps trigger body together", func(t *testing.T) {
		classes := Classify(`CREATE TRIGGER trg AFTER INSERT ON t BEGIN
			DELETE FROM u WHERE id = NEW.id;
			UPDATE v SET n = CASE WHEN n > 0 THEN n - 1 ELSE 0 END;
		END;
		SELECT 1`)
		assert.Equal(t, []Class{ClassDDL, ClassRead}, classes)
	})

	t.Run("temp trigger body", func(t *testing.T) {
		classes := Classify("CREATE TEMP TRIGGER trg AFTER DELETE ON t BEGIN DELETE FROM u; END; SELECT 1")
		assert.Equal(t, []Class{ClassDDL, ClassRead}, classes)
	})

	t.Run("trigger and begin as identifiers", func(t *testing.T) {
		classes := Classify("CREATE VIEW trigger AS SELECT 1 AS begin; INSERT INTO t VALUES (42)")
		assert.Equal(t, []Class{ClassDDL, ClassWrite}, classes)
	})

	t.Run("open trigger body is unknown", func(t *testing.T) {
		classes := Classify("CREATE TRIGGER trg AFTER INSERT ON t BEGIN DELETE FROM u; SELECT 1")
		assert.Equal(t, []Class{ClassUnknown}, classes)
	})

	t.Run("ignores empty statements", func(t *testing.T) {
		classes := Classify(";; SELECT 1 ;;")
		assert.Equal(t, []Class{ClassRead}, classes)
	})
}

func TestRequiredCapabilities(t *testing.T) {
	assert.Equal(t, NewCapabilities(Read), RequiredCapabilities(ClassRead, DDLRequiresDDL))
	assert.Equal(t, NewCapabilities(Write), RequiredCapabilities(ClassWrite, DDLRequiresDDL))
	assert.Equal(t, NewCapabilities(Write), RequiredCapabilities(ClassUnknown, DDLRequiresDDL))
	assert.Equal(t, NewCapabilities(DDL), RequiredCapabilities(ClassDDL, DDLRequiresDDL))
	assert.Equal(t, NewCapabilities(Write), RequiredCapabilities(ClassDDL, DDLRequiresWrite))
}

func TestParseCapabilities(t *testing.T) {
	caps, err := ParseCapabilities([]string{"READ", "write", " ddl "})
	require.NoError(t, err)
	assert.True(t, caps.Has(NewCapabilities(Read, Write, DDL)))
	assert.Equal(t, "read|write|ddl", caps.String())

	_, err = ParseCapabilities([]string{"admin"})
	assert.Error(t, err)

	assert.Equal(t, "none", Capabilities(0).String())
	assert.Equal(t, NewCapabilities(Write), NewCapabilities(Read).Missing(NewCapabilities(Read, Write)))
}
