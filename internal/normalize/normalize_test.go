package normalize

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/nhle/malharro-cms/internal/model"
)

const nestedNotification = `{
  "id": 12,
  "attributes": {
    "titulo": "Nueva usina",
    "mensaje": "Revisar",
    "tipo": "usina",
    "leida": "no-leida",
    "createdAt": "2025-05-02T14:00:00.000Z",
    "receptor": {"data": {"id": 3, "attributes": {"username": "ana"}}},
    "usinaAfectada": {"data": null}
  }
}`

const flatNotification = `{
  "id": 12,
  "titulo": "Nueva usina",
  "mensaje": "Revisar",
  "tipo": "usina",
  "leida": "no-leida",
  "createdAt": "2025-05-02T14:00:00.000Z",
  "receptor": {"id": 3, "username": "ana"},
  "usinaAfectada": null
}`

func parse(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return m
}

func TestNormalizeShapesAgree(t *testing.T) {
	nested, err := Normalize(parse(t, nestedNotification), Schema{})
	if err != nil {
		t.Fatalf("nested: %v", err)
	}
	flat, err := Normalize(parse(t, flatNotification), Schema{})
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if !reflect.DeepEqual(nested, flat) {
		t.Fatalf("shapes disagree:\nnested=%v\nflat=%v", nested, flat)
	}
	if nested.ID() != 12 {
		t.Fatalf("expected id 12, got %d", nested.ID())
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	schema := Schema{
		Aliases:   map[string]string{"title": "titulo"},
		Fallbacks: map[string]any{"mensaje": "(sin mensaje)"},
	}
	for _, fixture := range []string{nestedNotification, flatNotification} {
		once, err := Normalize(parse(t, fixture), schema)
		if err != nil {
			t.Fatalf("first pass: %v", err)
		}
		twice, err := Normalize(once, schema)
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("not idempotent:\nonce=%v\ntwice=%v", once, twice)
		}
	}
}

func TestFlatFieldsWinOverAttributes(t *testing.T) {
	rec, err := Normalize(map[string]any{
		"id":         float64(1),
		"titulo":     "flat",
		"attributes": map[string]any{"titulo": "nested", "carrera": "Diseño"},
	}, Schema{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec["titulo"] != "flat" {
		t.Fatalf("expected flat title, got %v", rec["titulo"])
	}
	if rec["carrera"] != "Diseño" {
		t.Fatalf("expected carrera from attributes, got %v", rec["carrera"])
	}
}

func TestAliasesAndFallbacks(t *testing.T) {
	schema := Schema{
		Aliases:   map[string]string{"contenido": "contenidoActividad"},
		Fallbacks: map[string]any{"imagen": nil, "carrera": "General"},
	}
	rec, err := Normalize(map[string]any{"contenido": "texto", "carrera": nil}, schema)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec["contenidoActividad"] != "texto" {
		t.Fatalf("alias not applied: %v", rec)
	}
	if rec["carrera"] != "General" {
		t.Fatalf("fallback not applied: %v", rec)
	}
}

func TestRelationArrays(t *testing.T) {
	rec, err := Normalize(map[string]any{
		"id": 1,
		"attributes": map[string]any{
			"usuarios": map[string]any{"data": []any{
				map[string]any{"id": float64(4), "attributes": map[string]any{"username": "a"}},
				map[string]any{"id": float64(5), "attributes": map[string]any{"username": "b"}},
			}},
		},
	}, Schema{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	users, ok := rec["usuarios"].([]any)
	if !ok || len(users) != 2 {
		t.Fatalf("expected two related users, got %v", rec["usuarios"])
	}
	second := users[1].(Record)
	if second.ID() != 5 || second["username"] != "b" {
		t.Fatalf("unexpected related user %v", second)
	}
}

func TestNormalizeRejectsNonRecord(t *testing.T) {
	if _, err := Normalize([]any{1, 2}, Schema{}); err != ErrNotRecord {
		t.Fatalf("expected ErrNotRecord, got %v", err)
	}
}

func TestDisplayKey(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want string
	}{
		{name: "id", rec: Record{"id": int64(9), "documentId": "abc"}, want: "9"},
		{name: "document", rec: Record{"documentId": "abc"}, want: "abc"},
		{name: "synthesized", rec: Record{"titulo": "Hola", "createdAt": "2025-01-01T00:00:00.000Z"}, want: "Hola-2025-01-01T00:00:00.000Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.DisplayKey("titulo"); got != tc.want {
				t.Fatalf("DisplayKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeNotification(t *testing.T) {
	rec, err := Normalize(parse(t, nestedNotification), Schema{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	var n model.Notification
	if err := Decode(rec, &n); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n.ID != 12 || n.Title != "Nueva usina" || n.Type != model.NotificationWorkItem {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.IsRead() {
		t.Fatalf("expected unread")
	}
	if n.RecipientID() != 3 {
		t.Fatalf("expected recipient 3, got %d", n.RecipientID())
	}
	want := time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC)
	if !n.CreatedAt.Equal(want) {
		t.Fatalf("CreatedAt = %v, want %v", n.CreatedAt, want)
	}
	if n.WorkItem != nil {
		t.Fatalf("expected nil work item ref, got %+v", n.WorkItem)
	}
}

func TestDecodeBooleanReadFlag(t *testing.T) {
	var n model.Notification
	if err := Decode(Record{"id": int64(1), "leida": true}, &n); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !n.IsRead() {
		t.Fatalf("expected read state from boolean flag")
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<p>Taller de <b>grabado</b> &amp; serigrafía</p>\n<p>Aula 3</p>")
	if got != "Taller de grabado & serigrafía Aula 3" {
		t.Fatalf("PlainText = %q", got)
	}
}
