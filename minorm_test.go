package minorm_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/minorm/minorm"
	"github.com/minorm/minorm/dialect"
	"github.com/minorm/minorm/errtranslator"
	"github.com/minorm/minorm/logger"
	"github.com/minorm/minorm/utils/tests"
)

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := minorm.Open(ctx, "sqlite:///:memory:", minorm.WithLogger(logger.Discard))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, tests.DDL["sqlite"][0])
	require.NoError(t, err)

	people := minorm.Objects[tests.Person](db)
	p := tests.NewPerson(t, people, "almaz", "galiev")
	require.NoError(t, people.Save(ctx, p))
	require.NoError(t, db.Commit())
	require.NotZero(t, p.ID)

	q, err := people.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "almaz", q.Name)
	assert.Equal(t, "galiev", q.Surname)
	assert.Equal(t, p.ID, q.ID)

	id := p.ID
	require.NoError(t, people.Delete(ctx, p))
	require.NoError(t, db.Commit())
	assert.Zero(t, p.ID)

	_, err = people.Get(ctx, id)
	assert.True(t, errors.Is(err, minorm.ErrNotFound), "got %v", err)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	nick := "al"
	p, err := people.New(map[string]interface{}{"Name": "almaz", "surname": "galiev", "nickname": nick, "age": int64(33)})
	require.NoError(t, err)
	require.NoError(t, people.Save(ctx, p))

	q, err := people.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, q)
}

func TestSaveTwiceInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	p := tests.NewPerson(t, people, "almaz", "galiev")
	require.NoError(t, people.Save(ctx, p))
	id := p.ID

	p.Surname = "galiev-updated"
	require.NoError(t, people.Save(ctx, p))
	assert.Equal(t, id, p.ID)

	count, err := people.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	q, err := people.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "galiev-updated", q.Surname)
}

func TestSaveUpdateMissingRow(t *testing.T) {
	db := tests.SQLite(t)
	p := &tests.Person{Model: minorm.Model{ID: 42}, Name: "ghost"}
	err := db.Save(context.Background(), p)
	assert.True(t, errors.Is(err, minorm.ErrNotFound), "got %v", err)
}

func TestDeleteUnsaved(t *testing.T) {
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	err := people.Delete(context.Background(), tests.NewPerson(t, people, "almaz", "galiev"))
	assert.True(t, errors.Is(err, minorm.ErrState), "got %v", err)
	assert.Contains(t, err.Error(), "cannot delete unsaved instance")

	err = db.Delete(context.Background(), &tests.Person{Model: minorm.Model{ID: 7}})
	assert.True(t, errors.Is(err, minorm.ErrNotFound), "got %v", err)
}

func TestGetMissing(t *testing.T) {
	db := tests.SQLite(t)
	_, err := minorm.Objects[tests.Person](db).Get(context.Background(), 12345)
	assert.True(t, errors.Is(err, minorm.ErrNotFound), "got %v", err)
}

func TestAllReturnsCommittedRows(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	for _, name := range []string{"almaz", "ruslan", "dina"} {
		require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, name, "galiev")))
	}
	require.NoError(t, db.Commit())

	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "uncommitted", "x")))
	require.NoError(t, db.Rollback())

	all, err := people.All(ctx)
	require.NoError(t, err)

	var names []string
	for _, p := range all {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"almaz", "dina", "ruslan"}, names)
}

func TestAllEmpty(t *testing.T) {
	all, err := minorm.Objects[tests.Person](tests.SQLite(t)).All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestNew(t *testing.T) {
	people := minorm.Objects[tests.Person](tests.SQLite(t))

	p, err := people.New(map[string]interface{}{"name": "almaz"})
	require.NoError(t, err)
	assert.Equal(t, 18, p.Age)
	assert.Nil(t, p.Nickname)
	assert.Zero(t, p.ID)

	_, err = people.New(map[string]interface{}{"name": "almaz", "middle_name": "x"})
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)
	assert.Contains(t, err.Error(), "middle_name")

	_, err = people.New(map[string]interface{}{"age": "old"})
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	nick := "al"
	a := tests.NewPerson(t, people, "almaz", "galiev")
	a.Nickname = &nick
	require.NoError(t, people.Save(ctx, a))
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "ruslan", "galiev")))
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "dina", "ivanova")))

	found, err := people.Filter(ctx, map[string]interface{}{"surname": "galiev"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = people.Filter(ctx, map[string]interface{}{"surname": "galiev", "nickname": nil})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ruslan", found[0].Name)

	_, err = people.Filter(ctx, map[string]interface{}{"shoe_size": 42})
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)
}

func TestEach(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	for _, name := range []string{"almaz", "ruslan", "dina"} {
		require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, name, "galiev")))
	}

	seen := 0
	require.NoError(t, people.Each(ctx, func(p *tests.Person) error {
		seen++
		return nil
	}))
	assert.Equal(t, 3, seen)

	stop := errors.New("stop")
	seen = 0
	err := people.Each(ctx, func(p *tests.Person) error {
		seen++
		return stop
	})
	assert.Same(t, stop, err)
	assert.Equal(t, 1, seen)
}

func TestEachCanWrite(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	for _, name := range []string{"almaz", "ruslan"} {
		require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, name, "galiev")))
	}

	require.NoError(t, people.Each(ctx, func(p *tests.Person) error {
		p.Age++
		return people.Save(ctx, p)
	}))

	all, err := people.All(ctx)
	require.NoError(t, err)
	for _, p := range all {
		assert.Equal(t, 19, p.Age)
	}
}

type duplicate struct {
	ID   int64
	Name string
}

func TestGetMultipleResults(t *testing.T) {
	ctx := context.Background()
	db := tests.Open(t, "sqlite:///:memory:")
	_, err := db.Exec(ctx, `CREATE TABLE "duplicate" ("id" INTEGER, "name" TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO "duplicate" ("id", "name") VALUES (?, ?), (?, ?)`, 1, "a", 1, "b")
	require.NoError(t, err)

	_, err = minorm.Objects[duplicate](db).Get(ctx, 1)
	assert.True(t, errors.Is(err, minorm.ErrMultipleResults), "got %v", err)
}

func TestHydrationDiscardsUnknownColumns(t *testing.T) {
	ctx := context.Background()
	db := tests.Open(t, "sqlite:///:memory:")
	_, err := db.Exec(ctx, `CREATE TABLE "duplicate" ("id" INTEGER PRIMARY KEY, "extra" BLOB, "name" TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO "duplicate" ("extra", "name") VALUES (?, ?)`, []byte{1, 2}, "a")
	require.NoError(t, err)

	d, err := minorm.Objects[duplicate](db).Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &duplicate{ID: 1, Name: "a"}, d)
}

func TestUncommittedWritesAreIsolated(t *testing.T) {
	ctx := context.Background()
	url := "sqlite:///" + filepath.Join(t.TempDir(), "people.db")

	db := tests.Open(t, url)
	tests.CreateTables(t, db)

	other := tests.Open(t, url)
	people := minorm.Objects[tests.Person](db)
	otherPeople := minorm.Objects[tests.Person](other)

	p := tests.NewPerson(t, people, "almaz", "galiev")
	require.NoError(t, people.Save(ctx, p))

	_, err := people.Get(ctx, p.ID)
	require.NoError(t, err, "pending writes are visible to the same handle")

	count, err := otherPeople.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	require.NoError(t, other.Rollback())

	require.NoError(t, db.Commit())

	count, err = otherPeople.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCommitWithoutPendingIsNoop(t *testing.T) {
	db := tests.SQLite(t)
	assert.NoError(t, db.Commit())
	assert.NoError(t, db.Commit())
	assert.NoError(t, db.Rollback())
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := minorm.Open(ctx, "mysql://root@localhost/db")
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)
	assert.True(t, errors.Is(err, minorm.ErrUnsupportedDialect), "got %v", err)

	_, err = minorm.Open(ctx, "")
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)

	_, err = minorm.Open(ctx, "sqlite:///", minorm.WithLogger(logger.Discard))
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)

	_, err = minorm.Open(ctx, "sqlite:///"+filepath.Join(t.TempDir(), "missing", "dir", "x.db"), minorm.WithLogger(logger.Discard))
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "almaz", "galiev")))

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := people.All(ctx)
	assert.True(t, errors.Is(err, minorm.ErrState), "got %v", err)
	assert.True(t, errors.Is(db.Commit(), minorm.ErrState))
}

func TestWithDatabase(t *testing.T) {
	ctx := context.Background()
	url := "sqlite:///" + filepath.Join(t.TempDir(), "scoped.db")
	opt := minorm.WithLogger(logger.Discard)

	require.NoError(t, minorm.WithDatabase(ctx, url, func(db *minorm.DB) error {
		if _, err := db.Exec(ctx, tests.DDL["sqlite"][0]); err != nil {
			return err
		}
		people := minorm.Objects[tests.Person](db)
		if err := people.Save(ctx, tests.NewPerson(t, people, "almaz", "galiev")); err != nil {
			return err
		}
		return db.Commit()
	}, opt))

	boom := errors.New("boom")
	err := minorm.WithDatabase(ctx, url, func(db *minorm.DB) error {
		people := minorm.Objects[tests.Person](db)
		if err := people.Save(ctx, tests.NewPerson(t, people, "ruslan", "galiev")); err != nil {
			return err
		}
		return boom
	}, opt)
	assert.Same(t, boom, err)

	require.NoError(t, minorm.WithDatabase(ctx, url, func(db *minorm.DB) error {
		count, err := minorm.Objects[tests.Person](db).Count(ctx)
		assert.Equal(t, int64(1), count)
		return err
	}, opt))
}

func TestTranslateError(t *testing.T) {
	ctx := context.Background()

	db := tests.SQLite(t, minorm.WithTranslateError())
	people := minorm.Objects[tests.Person](db)
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "almaz", "galiev")))

	err := people.Save(ctx, tests.NewPerson(t, people, "almaz", "other"))
	assert.True(t, errors.Is(err, minorm.ErrDatabase), "got %v", err)
	assert.True(t, errors.Is(err, errtranslator.ErrDuplicatedKey{}), "got %v", err)

	plain := tests.SQLite(t)
	plainPeople := minorm.Objects[tests.Person](plain)
	require.NoError(t, plainPeople.Save(ctx, tests.NewPerson(t, plainPeople, "almaz", "galiev")))
	err = plainPeople.Save(ctx, tests.NewPerson(t, plainPeople, "almaz", "other"))
	assert.True(t, errors.Is(err, minorm.ErrDatabase), "got %v", err)
	assert.False(t, errors.Is(err, errtranslator.ErrDuplicatedKey{}))
}

func TestDebugTracesStatements(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	quiet := logger.New(log.New(&buf, "", 0), logger.Config{LogLevel: logger.Warn})

	db := tests.SQLite(t, minorm.WithLogger(quiet))
	people := minorm.Objects[tests.Person](db)
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "quiet", "galiev")))
	assert.NotContains(t, buf.String(), "quiet")

	debugPeople := minorm.Objects[tests.Person](db.Debug())
	require.NoError(t, debugPeople.Save(ctx, tests.NewPerson(t, debugPeople, "almaz", "galiev")))
	assert.Contains(t, buf.String(), `INSERT INTO "person" ("name","surname","nickname","age") VALUES ('almaz','galiev',NULL,18)`)
	assert.Contains(t, buf.String(), "[rows:1]")
}

func TestParameterizedQueriesHidesValues(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	l := logger.New(log.New(&buf, "", 0), logger.Config{LogLevel: logger.Info, ParameterizedQueries: true})

	db := tests.SQLite(t, minorm.WithLogger(l))
	people := minorm.Objects[tests.Person](db)
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "secret", "galiev")))
	assert.NotContains(t, buf.String(), "secret")
	assert.Contains(t, buf.String(), `VALUES (?,?,?,?)`)
}

func TestRegister(t *testing.T) {
	db := tests.SQLite(t)
	assert.NoError(t, db.Register(&tests.Person{}, duplicate{}))

	type noKey struct{ Name string }
	err := db.Register(noKey{})
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)

	_, err = minorm.Objects[noKey](db).All(context.Background())
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)

	_, err = minorm.Objects[*tests.Person](db).All(context.Background())
	assert.True(t, errors.Is(err, minorm.ErrConfiguration), "got %v", err)

	assert.True(t, errors.Is(db.Save(context.Background(), tests.Person{}), minorm.ErrConfiguration))
	assert.Equal(t, "sqlite", db.Dialect())
	assert.NotNil(t, db.SQLDB())
}

func TestUnsafeValuesStayBound(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	people := minorm.Objects[tests.Person](db)

	evil := `x"); DROP TABLE "person"; --`
	p := tests.NewPerson(t, people, evil, "galiev")
	require.NoError(t, people.Save(ctx, p))

	q, err := people.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, evil, q.Name)
}

func TestCustomColumnType(t *testing.T) {
	ctx := context.Background()
	db := tests.SQLite(t)
	articles := minorm.Objects[tests.Article](db)

	a, err := articles.New(map[string]interface{}{"title": "orm", "tags": "go,sql"})
	require.NoError(t, err)
	assert.Equal(t, tests.Tags{"go", "sql"}, a.Tags)
	require.NoError(t, articles.Save(ctx, a))

	untagged := &tests.Article{Title: "plain"}
	require.NoError(t, articles.Save(ctx, untagged))

	got, err := articles.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = articles.Get(ctx, untagged.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Tags)
}

func TestStructuredLoggerTracesStatements(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	l := logger.NewZapLogger(zap.New(core), logger.Config{LogLevel: logger.Info})

	db := tests.SQLite(t, minorm.WithLogger(l))
	people := minorm.Objects[tests.Person](db)
	require.NoError(t, people.Save(ctx, tests.NewPerson(t, people, "almaz", "galiev")))

	entries := logs.FilterMessage("statement executed").FilterField(zap.Int64("rows", 1)).All()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[len(entries)-1].ContextMap()["sql"], `'almaz'`)

	_, err := people.Get(ctx, 999)
	require.Error(t, err)
	assert.NotEmpty(t, logs.FilterMessage("statement executed").FilterField(zap.String("sql", `SELECT * FROM "person" WHERE "id" = 999`)).All())
}

type event struct {
	ID    int64
	At    time.Time
	Ended *time.Time
	Note  time.Time
}

func TestTimeRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := tests.Open(t, "sqlite:///:memory:")
	_, err := db.Exec(ctx, `CREATE TABLE "event" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "at" TEXT, "ended" TEXT, "note")`)
	require.NoError(t, err)
	events := minorm.Objects[event](db)

	at := time.Date(2024, 3, 4, 5, 6, 7, 800, time.UTC)
	e := &event{At: at, Note: at.Add(time.Hour)}
	require.NoError(t, events.Save(ctx, e))

	got, err := events.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.At.Equal(at), "got %v", got.At)
	assert.True(t, got.Note.Equal(at.Add(time.Hour)), "got %v", got.Note)
	assert.Nil(t, got.Ended)

	ended := at.Add(24 * time.Hour)
	got.Ended = &ended
	require.NoError(t, events.Save(ctx, got))
	require.NoError(t, db.Commit())

	all, err := events.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	if assert.NotNil(t, all[0].Ended) {
		assert.True(t, all[0].Ended.Equal(ended), "got %v", *all[0].Ended)
	}
}

// abortingSQLite runs SQLite behind per-statement savepoints.
type abortingSQLite struct {
	*dialect.SQLite
}

func (abortingSQLite) AbortsOnError() bool { return true }

func TestFailedStatementKeepsPendingWork(t *testing.T) {
	ctx := context.Background()
	d, err := dialect.NewSQLite("sqlite:///:memory:")
	require.NoError(t, err)
	db, err := minorm.OpenDialector(ctx, abortingSQLite{d}, minorm.WithLogger(logger.Discard), minorm.WithTranslateError())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tests.CreateTables(t, db)
	people := minorm.Objects[tests.Person](db)

	p := tests.NewPerson(t, people, "almaz", "galiev")
	require.NoError(t, people.Save(ctx, p))
	p.Surname = "updated"
	require.NoError(t, people.Save(ctx, p))

	err = people.Save(ctx, tests.NewPerson(t, people, "almaz", "again"))
	assert.True(t, errors.Is(err, errtranslator.ErrDuplicatedKey{}), "got %v", err)

	count, err := people.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Commit())

	got, err := people.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Surname)
}

func TestManagerWithoutDatabase(t *testing.T) {
	people := minorm.Objects[tests.Person](nil)
	_, err := people.All(context.Background())
	assert.True(t, errors.Is(err, minorm.ErrState), "got %v", err)
	_, err = people.Schema()
	assert.True(t, errors.Is(err, minorm.ErrState), "got %v", err)
}

type qualified struct {
	ID   int64
	Name string
}

func (qualified) TableName() string { return "main.qualified" }

func TestQualifiedTableName(t *testing.T) {
	ctx := context.Background()
	db := tests.Open(t, "sqlite:///:memory:")
	_, err := db.Exec(ctx, `CREATE TABLE "qualified" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT)`)
	require.NoError(t, err)
	rows := minorm.Objects[qualified](db)

	q := &qualified{Name: "dotted"}
	require.NoError(t, rows.Save(ctx, q))
	got, err := rows.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}
