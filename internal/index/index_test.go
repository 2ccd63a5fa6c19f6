package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "dagaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testNote(t *testing.T, db *DB, date string) *models.Note {
	t.Helper()
	n, err := db.EnsureDailyNote(date)
	if err != nil {
		t.Fatalf("EnsureDailyNote: %v", err)
	}
	return n
}

func seqOf(i int64) *int64 { return &i }

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "appends", "bullets", "links", "annotations", "idempotency_keys", "import_files"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestEnsureDailyNote_IdempotentPerDate(t *testing.T) {
	db := testDB(t)
	a := testNote(t, db, "2025-10-03")
	b := testNote(t, db, "2025-10-03")
	if a.ID != b.ID {
		t.Errorf("two ensures for one date gave different notes: %q vs %q", a.ID, b.ID)
	}
	c := testNote(t, db, "2025-10-04")
	if c.ID == a.ID {
		t.Error("different dates must map to different notes")
	}
}

func TestEnsureNamedNote(t *testing.T) {
	db := testDB(t)
	a, err := db.EnsureNamedNote("Projects")
	if err != nil {
		t.Fatalf("EnsureNamedNote: %v", err)
	}
	b, _ := db.EnsureNamedNote("Projects")
	if a.ID != b.ID {
		t.Error("two ensures for one title gave different notes")
	}
	if a.Kind != models.NoteKindNamed || a.Title != "Projects" {
		t.Errorf("note = %+v", a)
	}
}

func TestAppendBullet_MaterializesLinks(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-05")

	res, err := db.AppendBullet(n.ID, "c1", models.BulletPayload{
		BulletID: "b1",
		Depth:    0,
		Text:     "Check [[Alpha]] #urgent",
	})
	if err != nil {
		t.Fatalf("AppendBullet: %v", err)
	}
	if res.OrderSeq == 0 || res.LastSeq != res.OrderSeq {
		t.Errorf("result = %+v", res)
	}

	bl, err := db.Backlinks(models.TargetNote, "Alpha")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 1 || bl[0].BulletID != "b1" {
		t.Fatalf("backlinks = %+v", bl)
	}
	ent, _ := db.Backlinks(models.TargetEntity, "urgent")
	if len(ent) != 1 || ent[0].BulletID != "b1" {
		t.Fatalf("entity backlinks = %+v", ent)
	}

	bullets, err := db.BulletsSince(n.ID, 0, false)
	if err != nil {
		t.Fatalf("BulletsSince: %v", err)
	}
	if len(bullets) != 1 || bullets[0].ID != "b1" {
		t.Fatalf("bullets = %+v", bullets)
	}
}

func TestAppendBullet_OrderAndDepth(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-06")

	if _, err := db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Depth: 0, Text: "parent"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b2", ParentID: "b1", Depth: 1, Text: "child"}); err != nil {
		t.Fatal(err)
	}

	bullets, _ := db.BulletsSince(n.ID, 0, false)
	if len(bullets) != 2 || bullets[0].ID != "b1" || bullets[1].ID != "b2" {
		t.Fatalf("bullets = %+v", bullets)
	}
	if bullets[1].Depth != 1 || bullets[1].ParentID != "b1" {
		t.Errorf("child = %+v", bullets[1])
	}
	if bullets[1].OrderSeq <= bullets[0].OrderSeq {
		t.Error("order keys must be strictly increasing")
	}
}

func TestAppendBullet_SinceSeqFilters(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-07")

	first, _ := db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "one"})
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b2", Text: "two"})

	bullets, _ := db.BulletsSince(n.ID, first.OrderSeq, false)
	if len(bullets) != 1 || bullets[0].ID != "b2" {
		t.Fatalf("incremental sync returned %+v", bullets)
	}
}

func TestAppendBullet_NoteNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.AppendBullet("missing", "c1", models.BulletPayload{BulletID: "b1", Text: "x"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendBullet_IdempotentRetry(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-08")

	p := models.BulletPayload{BulletID: "b1", Text: "retry me", ClientSeq: seqOf(5)}
	first, err := db.AppendBullet(n.ID, "client-a", p)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	second, err := db.AppendBullet(n.ID, "client-a", p)
	if err != nil {
		t.Fatalf("retry append: %v", err)
	}
	if !second.Duplicate {
		t.Error("retry should be reported as duplicate")
	}
	if second.OrderSeq != first.OrderSeq || second.LastSeq != first.LastSeq {
		t.Errorf("retry result %+v != original %+v", second, first)
	}

	var count int
	db.conn.QueryRow(`SELECT count(*) FROM bullets`).Scan(&count)
	if count != 1 {
		t.Errorf("bullet rows = %d, want 1", count)
	}
	db.conn.QueryRow(`SELECT count(*) FROM appends`).Scan(&count)
	if count != 1 {
		t.Errorf("log rows = %d, want 1 (duplicate must not re-append)", count)
	}
}

func TestAppendBullet_DifferentClientsNotDeduped(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-09")

	db.AppendBullet(n.ID, "client-a", models.BulletPayload{BulletID: "b1", Text: "a", ClientSeq: seqOf(1)})
	res, err := db.AppendBullet(n.ID, "client-b", models.BulletPayload{BulletID: "b2", Text: "b", ClientSeq: seqOf(1)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Duplicate {
		t.Error("same clientSeq from a different client must be fresh")
	}
}

func TestMaterializeBullet_ReplaySafeOnBulletID(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-10")

	// Same bullet id appended twice without a clientSeq: the second insert is
	// treated as already-applied, not an error, and links are not duplicated.
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "see [[Alpha]]"})
	if _, err := db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "see [[Alpha]]"}); err != nil {
		t.Fatalf("re-processing same bullet id: %v", err)
	}

	var count int
	db.conn.QueryRow(`SELECT count(*) FROM bullets`).Scan(&count)
	if count != 1 {
		t.Errorf("bullet rows = %d, want 1", count)
	}
	db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count)
	if count != 1 {
		t.Errorf("link rows = %d, want 1", count)
	}
}

func TestLinksMirrorSpans(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-11")

	db.AppendBullet(n.ID, "c1", models.BulletPayload{
		BulletID: "b1",
		Text:     "go [[Alpha]] #x #y https://z.io",
	})

	b, err := db.GetBullet("b1")
	if err != nil {
		t.Fatal(err)
	}

	want := map[[2]string]int{}
	for _, s := range b.Spans {
		switch s.Type {
		case models.SpanWikilink:
			want[[2]string{models.TargetNote, s.Target}]++
		case models.SpanTag:
			want[[2]string{models.TargetEntity, s.Target}]++
		case models.SpanURL:
			want[[2]string{models.TargetURL, s.Target}]++
		}
	}

	rows, _ := db.conn.Query(`SELECT target_type, target_value FROM links WHERE bullet_id = 'b1'`)
	defer rows.Close()
	got := map[[2]string]int{}
	for rows.Next() {
		var tt, tv string
		rows.Scan(&tt, &tv)
		got[[2]string{tt, tv}]++
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("links %v do not mirror spans %v", got, want)
	}
}

func TestAnnotation_HistoryAndLatestWins(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-12")
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "do it"})

	open, _ := json.Marshal(models.TaskData{State: models.TaskOpen})
	done, _ := json.Marshal(models.TaskData{State: models.TaskDone})
	if _, err := db.AppendAnnotation(models.AnnotationPayload{BulletID: "b1", Type: models.AnnotationTask, Data: open}); err != nil {
		t.Fatalf("annotation open: %v", err)
	}
	if _, err := db.AppendAnnotation(models.AnnotationPayload{BulletID: "b1", Type: models.AnnotationTask, Data: done}); err != nil {
		t.Fatalf("annotation done: %v", err)
	}

	tasks, err := db.Tasks()
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].BulletID != "b1" || tasks[0].State != models.TaskDone {
		t.Fatalf("tasks = %+v", tasks)
	}

	// History is kept: repeated states are appended, never merged.
	var count int
	db.conn.QueryRow(`SELECT count(*) FROM annotations WHERE bullet_id = 'b1'`).Scan(&count)
	if count != 2 {
		t.Errorf("annotation rows = %d, want 2", count)
	}
}

func TestAnnotation_BulletNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.AppendAnnotation(models.AnnotationPayload{BulletID: "nope", Type: models.AnnotationTask})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRedact_IdempotentOneWay(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-13")
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "secret [[Alpha]]"})

	if _, err := db.Redact(models.RedactPayload{BulletID: "b1"}); err != nil {
		t.Fatalf("redact: %v", err)
	}
	// Second redact is a no-op, not an error.
	if _, err := db.Redact(models.RedactPayload{BulletID: "b1"}); err != nil {
		t.Fatalf("second redact: %v", err)
	}

	bullets, _ := db.BulletsSince(n.ID, 0, false)
	if len(bullets) != 0 {
		t.Errorf("redacted bullet leaked into default read: %+v", bullets)
	}
	all, _ := db.BulletsSince(n.ID, 0, true)
	if len(all) != 1 || !all[0].Redacted {
		t.Errorf("includeRedacted read = %+v", all)
	}

	// Still resolvable by id for parent-chain integrity.
	b, err := db.GetBullet("b1")
	if err != nil || !b.Redacted {
		t.Errorf("GetBullet after redact: %+v, %v", b, err)
	}

	if bl, _ := db.Backlinks(models.TargetNote, "Alpha"); len(bl) != 0 {
		t.Errorf("backlinks to redacted bullet = %+v", bl)
	}
	if res, _ := db.Search("secret", 10); len(res) != 0 {
		t.Errorf("redacted bullet surfaced in search: %+v", res)
	}
}

func TestRedact_ChildStaysVisible(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-14")
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "p", Text: "parent"})
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "ch", ParentID: "p", Depth: 1, Text: "child"})
	db.Redact(models.RedactPayload{BulletID: "p"})

	bullets, _ := db.BulletsSince(n.ID, 0, false)
	if len(bullets) != 1 || bullets[0].ID != "ch" || bullets[0].ParentID != "p" {
		t.Errorf("child should keep its parent pointer and stay visible: %+v", bullets)
	}
}

func TestRedact_BulletNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.Redact(models.RedactPayload{BulletID: "ghost"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestWatermark_AdvancesMonotonically(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-15")

	res, _ := db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "x"})
	got, _ := db.GetNote(n.ID)
	if got.LastSeq != res.OrderSeq {
		t.Errorf("last_seq = %d, want %d", got.LastSeq, res.OrderSeq)
	}

	// A stale advance must never move the watermark backward.
	tx, _ := db.conn.Begin()
	advanceWatermark(tx, n.ID, res.OrderSeq-1)
	tx.Commit()
	got, _ = db.GetNote(n.ID)
	if got.LastSeq != res.OrderSeq {
		t.Errorf("watermark moved backward: %d", got.LastSeq)
	}
}

func TestLinkTargets(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-16")
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "[[Alpha]] [[Alphabet]] [[Beta]]"})
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b2", Text: "[[Alpha]] again"})

	targets, err := db.LinkTargets(models.TargetNote, "alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(targets, []string{"Alpha", "Alphabet"}) {
		t.Errorf("targets = %v", targets)
	}
}

// materializedState captures everything derived from the log for the
// replay-equivalence check.
func materializedState(t *testing.T, db *DB) map[string]string {
	t.Helper()
	out := map[string]string{}
	for name, q := range map[string]string{
		"bullets":     `SELECT id, note_id, COALESCE(parent_id,''), depth, order_seq, text, spans, redacted FROM bullets ORDER BY order_seq`,
		"links":       `SELECT bullet_id, target_type, target_value FROM links ORDER BY bullet_id, target_type, target_value`,
		"annotations": `SELECT bullet_id, type, data FROM annotations ORDER BY id`,
		"watermarks":  `SELECT id, last_seq FROM notes ORDER BY id`,
	} {
		rows, err := db.conn.Query(q)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		cols, _ := rows.Columns()
		var dump string
		for rows.Next() {
			vals := make([]any, len(cols))
			for i := range vals {
				var s sql.NullString
				vals[i] = &s
			}
			rows.Scan(vals...)
			for _, v := range vals {
				dump += v.(*sql.NullString).String + "|"
			}
			dump += "\n"
		}
		rows.Close()
		out[name] = dump
	}
	return out
}

func TestRebuild_ReplayEquivalence(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-17")
	m, _ := db.EnsureNamedNote("Side")

	open, _ := json.Marshal(models.TaskData{State: models.TaskOpen})
	done, _ := json.Marshal(models.TaskData{State: models.TaskDone})

	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "root [[Alpha]] #t"})
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b2", ParentID: "b1", Depth: 1, Text: "child https://x.io"})
	db.AppendBullet(m.ID, "c2", models.BulletPayload{BulletID: "b3", Text: "other note"})
	db.AppendAnnotation(models.AnnotationPayload{BulletID: "b1", Type: models.AnnotationTask, Data: open})
	db.AppendAnnotation(models.AnnotationPayload{BulletID: "b1", Type: models.AnnotationTask, Data: done})
	db.Redact(models.RedactPayload{BulletID: "b2"})

	before := materializedState(t, db)
	if err := db.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	after := materializedState(t, db)

	if !reflect.DeepEqual(before, after) {
		t.Errorf("replay diverged from incremental materialization:\nbefore: %v\nafter:  %v", before, after)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	n := testNote(t, db, "2025-10-18")
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b1", Text: "grocery list for the week"})
	db.AppendBullet(n.ID, "c1", models.BulletPayload{BulletID: "b2", Text: "unrelated"})

	res, err := db.Search("grocery", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].BulletID != "b1" {
		t.Fatalf("results = %+v", res)
	}
	if res[0].NoteID != n.ID || res[0].Date != "2025-10-18" {
		t.Errorf("result metadata = %+v", res[0])
	}
}

func TestImportChecksums(t *testing.T) {
	db := testDB(t)
	cs, err := db.ImportChecksum("inbox/a.md")
	if err != nil || cs != "" {
		t.Fatalf("unknown file: %q, %v", cs, err)
	}
	if err := db.SetImportChecksum("inbox/a.md", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetImportChecksum("inbox/a.md", "def"); err != nil {
		t.Fatal(err)
	}
	cs, _ = db.ImportChecksum("inbox/a.md")
	if cs != "def" {
		t.Errorf("checksum = %q, want def", cs)
	}
}
