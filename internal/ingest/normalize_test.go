package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/cloudlog/internal/cloudlog"
)

func fixedNormalizer(resolver UserResolver) *Normalizer {
	z := NewNormalizer(DefaultUserResolution(), resolver, newTestLogger())
	z.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	return z
}

func noVars(string) (string, bool) { return "", false }

func TestNormalize_UserPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"user wins", map[string]any{"user": "alice", "username": "bob"}, "alice"},
		{"username second", map[string]any{"username": "bob", "owner": "carol"}, "bob"},
		{"author", map[string]any{"author": "dan"}, "dan"},
		{"player", map[string]any{"player": "eve", "owner": "frank"}, "eve"},
		{"owner last", map[string]any{"owner": "frank"}, "frank"},
		{"empty string skipped", map[string]any{"user": "", "username": "bob"}, "bob"},
		{"null skipped", map[string]any{"user": nil, "player": "eve"}, "eve"},
		{"missing", map[string]any{}, cloudlog.UnknownUser},
	}

	z := fixedNormalizer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := z.Normalize(context.Background(), setNote("☁ score", "1", tt.fields), noVars)
			if !ok {
				t.Fatal("Normalize() ok = false")
			}
			if entry.User != tt.want {
				t.Errorf("User = %q, want %q", entry.User, tt.want)
			}
		})
	}
}

func TestNormalize_ResolvesUserID(t *testing.T) {
	resolver := &staticResolver{users: map[string]string{"42": "resolved"}}
	z := fixedNormalizer(resolver)

	entry, _ := z.Normalize(context.Background(), setNote("☁ x", "1", map[string]any{"uid": float64(42)}), noVars)
	if entry.User != "resolved" {
		t.Errorf("User = %q, want resolved", entry.User)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver calls = %d, want 1", resolver.calls)
	}
}

func TestNormalize_ResolverFailureFallsThrough(t *testing.T) {
	resolver := &staticResolver{err: errors.New("lookup down")}
	z := fixedNormalizer(resolver)

	vars := func(name string) (string, bool) {
		if name == "☁ last_user" {
			return "helper", true
		}
		return "", false
	}

	entry, _ := z.Normalize(context.Background(), setNote("☁ x", "1", map[string]any{"user_id": "7"}), vars)
	if entry.User != "helper" {
		t.Errorf("User = %q, want helper", entry.User)
	}
}

func TestNormalize_IDWithoutResolverIgnored(t *testing.T) {
	z := fixedNormalizer(nil)
	entry, _ := z.Normalize(context.Background(), setNote("☁ x", "1", map[string]any{"id": "7"}), noVars)
	if entry.User != cloudlog.UnknownUser {
		t.Errorf("User = %q, want %q", entry.User, cloudlog.UnknownUser)
	}
}

func TestNormalize_HelperVariableUnprefixed(t *testing.T) {
	z := fixedNormalizer(nil)
	vars := func(name string) (string, bool) {
		if name == "last_user" {
			return "plain", true
		}
		return "", false
	}
	entry, _ := z.Normalize(context.Background(), setNote("☁ x", "1", nil), vars)
	if entry.User != "plain" {
		t.Errorf("User = %q, want plain", entry.User)
	}
}

func TestNormalize_ConfiguredFieldsOnly(t *testing.T) {
	z := NewNormalizer(UserResolution{Fields: []string{"who"}}, nil, newTestLogger())
	entry, _ := z.Normalize(context.Background(), setNote("☁ x", "1", map[string]any{"user": "ignored", "who": "chosen"}), noVars)
	if entry.User != "chosen" {
		t.Errorf("User = %q, want chosen", entry.User)
	}
}

func TestNormalize_Timestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   any
		want string
	}{
		{"provider string kept", "2023-11-14T22:13:20Z", "2023-11-14T22:13:20Z"},
		{"epoch millis float", float64(1700000000000), "2023-11-14T22:13:20.000Z"},
		{"epoch millis int64", int64(1700000000000), "2023-11-14T22:13:20.000Z"},
		{"epoch millis json number", json.Number("1700000000000"), "2023-11-14T22:13:20.000Z"},
		{"fractional json number", json.Number("1700000000000.5"), "2023-11-14T22:13:20.000Z"},
		{"missing uses now", nil, "2024-05-01T12:30:00.000Z"},
		{"empty uses now", "", "2024-05-01T12:30:00.000Z"},
	}

	z := fixedNormalizer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := setNote("☁ x", "1", nil)
			n.Timestamp = tt.ts
			entry, _ := z.Normalize(context.Background(), n, noVars)
			if entry.Time != tt.want {
				t.Errorf("Time = %q, want %q", entry.Time, tt.want)
			}
		})
	}
}

func TestNormalize_Actions(t *testing.T) {
	z := fixedNormalizer(nil)

	tests := []struct {
		method    string
		wantOK    bool
		wantValue any
	}{
		{"set", true, "9"},
		{"create", true, nil},
		{"delete", true, nil},
		{"rename", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			n := Notification{Method: tt.method, Name: "☁ v", Value: "9", Fields: map[string]any{}}
			entry, ok := z.Normalize(context.Background(), n, noVars)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if string(entry.Action) != tt.method {
				t.Errorf("Action = %q, want %q", entry.Action, tt.method)
			}
			if entry.Value != tt.wantValue {
				t.Errorf("Value = %v, want %v", entry.Value, tt.wantValue)
			}
		})
	}
}

func TestNormalize_VariableName(t *testing.T) {
	z := fixedNormalizer(nil)

	withVar := setNote("☁ name", "1", map[string]any{"var": "☁ var"})
	if got := mustNormalize(t, z, withVar).VariableName(); got != "☁ var" {
		t.Errorf("variable = %q, want ☁ var", got)
	}

	missing := Notification{Method: "set", Fields: map[string]any{}}
	if v := mustNormalize(t, z, missing).Variable; v != nil {
		t.Errorf("variable = %q, want nil", *v)
	}
}

func mustNormalize(t *testing.T, z *Normalizer, n Notification) cloudlog.Entry {
	t.Helper()
	entry, ok := z.Normalize(context.Background(), n, noVars)
	if !ok {
		t.Fatalf("Normalize(%+v) ok = false", n)
	}
	return entry
}

func TestNotification_Shape(t *testing.T) {
	n := Notification{Fields: map[string]any{"value": 1, "method": "set", "name": "x"}}
	if got := n.Shape(); got != "method,name,value" {
		t.Errorf("Shape() = %q", got)
	}
}
