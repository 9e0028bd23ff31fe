package format

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backmassage/poseconv/internal/pose"
)

type fakeAdapter struct {
	name    string
	match   bool
	project *pose.Project
	err     error

	reads   int
	gotOpts Options
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Match(string) bool { return f.match }
func (f *fakeAdapter) Read(_ context.Context, _ string, opts Options) (*pose.Project, error) {
	f.reads++
	f.gotOpts = opts
	return f.project, f.err
}

type mockLogger struct {
	notices []string
	debugs  []string
}

func (m *mockLogger) Notice(format string, args ...interface{}) {
	m.notices = append(m.notices, fmt.Sprintf(format, args...))
}

func (m *mockLogger) Debug(_ bool, format string, args ...interface{}) {
	m.debugs = append(m.debugs, fmt.Sprintf(format, args...))
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mismatch(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrUnrecognized)
}

func TestNewRegistry(t *testing.T) {
	native := &fakeAdapter{name: "slp"}
	if _, err := NewRegistry(nil); err == nil {
		t.Error("NewRegistry(nil) = nil error, want error")
	}
	if _, err := NewRegistry(native, &fakeAdapter{name: "slp"}); err == nil {
		t.Error("NewRegistry() with duplicate name = nil error, want error")
	}
	if _, err := NewRegistry(native, &fakeAdapter{name: "leap"}, nil); err == nil {
		t.Error("NewRegistry() with nil importer = nil error, want error")
	}

	reg, err := NewRegistry(native, &fakeAdapter{name: "leap"}, &fakeAdapter{name: "dlc"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	names := reg.Names()
	want := []string{"slp", "leap", "dlc"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestImport_NativeWins(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "proj.slp"))

	proj := pose.NewProject()
	native := &fakeAdapter{name: "slp", project: proj}
	legacy := &fakeAdapter{name: "leap", match: true, project: pose.NewProject()}
	reg, _ := NewRegistry(native, legacy)
	log := &mockLogger{}

	got, err := reg.Import(context.Background(), input, Options{}, log)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got != proj {
		t.Error("Import() did not return the native reader's project")
	}
	if legacy.reads != 0 {
		t.Error("legacy importer was read despite native success")
	}
	if len(log.notices) != 0 {
		t.Errorf("notices = %v, want none", log.notices)
	}
}

func TestImport_FallbackOnMismatch(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "labels.mat"))

	proj := pose.NewProject()
	native := &fakeAdapter{name: "slp", err: mismatch("no container signature")}
	skipped := &fakeAdapter{name: "leap", match: false}
	winner := &fakeAdapter{name: "dlc", match: true, project: proj}
	after := &fakeAdapter{name: "dpk", match: true, project: pose.NewProject()}
	reg, _ := NewRegistry(native, skipped, winner, after)
	log := &mockLogger{}

	got, err := reg.Import(context.Background(), input, Options{}, log)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got != proj {
		t.Error("Import() did not return the matching importer's project")
	}
	if after.reads != 0 {
		t.Error("probe continued past the first matching importer")
	}
	if len(log.notices) != 1 || !strings.Contains(log.notices[0], "legacy importers") {
		t.Errorf("notices = %v, want one fallback notice", log.notices)
	}
}

func TestImport_NativeIOErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "proj.slp"))

	wantErr := errors.New("truncated container")
	native := &fakeAdapter{name: "slp", err: wantErr}
	legacy := &fakeAdapter{name: "leap", match: true}
	reg, _ := NewRegistry(native, legacy)
	log := &mockLogger{}

	_, err := reg.Import(context.Background(), input, Options{}, log)
	if !errors.Is(err, wantErr) {
		t.Errorf("Import() error = %v, want %v", err, wantErr)
	}
	if legacy.reads != 0 {
		t.Error("legacy importer probed after a non-mismatch native failure")
	}
	if len(log.notices) != 0 {
		t.Errorf("notices = %v, want none", log.notices)
	}
}

func TestImport_MissingFile(t *testing.T) {
	native := &fakeAdapter{name: "slp", match: true}
	reg, _ := NewRegistry(native)
	log := &mockLogger{}

	_, err := reg.Import(context.Background(), filepath.Join(t.TempDir(), "gone.slp"), Options{}, log)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Import() error = %v, want not-exist", err)
	}
	if native.reads != 0 {
		t.Error("native reader invoked for a missing file")
	}
}

func TestImport_Unrecognized(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "mystery.bin"))

	native := &fakeAdapter{name: "slp", err: mismatch("no container signature")}
	reg, _ := NewRegistry(native, &fakeAdapter{name: "leap"}, &fakeAdapter{name: "dlc"})
	log := &mockLogger{}

	_, err := reg.Import(context.Background(), input, Options{}, log)
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("Import() error = %T, want *UnsupportedFormatError", err)
	}
	for _, name := range []string{"slp", "leap", "dlc"} {
		found := false
		for _, tried := range ufe.Tried {
			if tried == name {
				found = true
			}
		}
		if !found {
			t.Errorf("Tried = %v, missing %q", ufe.Tried, name)
		}
	}
	if !strings.Contains(ufe.Error(), "mystery.bin") {
		t.Errorf("Error() = %q, want input path mentioned", ufe.Error())
	}
}

func TestImport_MatchedReadErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "labels.csv"))

	wantErr := errors.New("bad header row")
	native := &fakeAdapter{name: "slp", err: mismatch("no container signature")}
	broken := &fakeAdapter{name: "dlc", match: true, err: wantErr}
	after := &fakeAdapter{name: "coco", match: true, project: pose.NewProject()}
	reg, _ := NewRegistry(native, broken, after)

	_, err := reg.Import(context.Background(), input, Options{}, &mockLogger{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Import() error = %v, want %v", err, wantErr)
	}
	if after.reads != 0 {
		t.Error("probe continued past a matched importer's read failure")
	}
}

func TestImport_SeedsResolverWithInputDir(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "proj.slp"))
	touch(t, filepath.Join(dir, "camA.mp4"))

	native := &fakeAdapter{name: "slp", project: pose.NewProject()}
	reg, _ := NewRegistry(native)

	if _, err := reg.Import(context.Background(), input, Options{}, &mockLogger{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if native.gotOpts.Resolver == nil {
		t.Fatal("reader received a nil resolver")
	}
	resolved, err := native.gotOpts.Resolver.Resolve("camA.mp4")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved != filepath.Join(dir, "camA.mp4") {
		t.Errorf("Resolve() = %q, want file in input dir", resolved)
	}
}
