package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTransportImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"github.com/gin-gonic/gin", true},
		{"github.com/gorilla/websocket", true},
		{"talentcore/internal/adapters/httpapi", true},
		{"talentcore/internal/notify/bus", true},
		{"talentcore/internal/infra/persistence/memory", false},
		{"go.uber.org/zap", false},
	}
	for _, c := range cases {
		if got := TransportImportForbidden(c.in); got != c.want {
			t.Fatalf("TransportImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAnyOf(t *testing.T) {
	pred := AnyOf(InternalImportForbidden, TransportImportForbidden)
	if !pred("talentcore/internal/core") || !pred("github.com/gin-gonic/gin") {
		t.Fatalf("expected combined predicate to match both families")
	}
	if pred("talentcore/pkg/domain") {
		t.Fatalf("domain path should pass")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package tmp\nimport \"talentcore/internal/core\"\nvar _ = core.DefaultRetention\n")
	write("a_test.go", "package tmp\nimport \"github.com/gin-gonic/gin\"\nvar _ = gin.New\n")

	viols, err := directImportViolations(dir, AnyOf(InternalImportForbidden, TransportImportForbidden))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "talentcore/internal/core (in a.go)") {
		t.Fatalf("expected single non-test violation, got %v", viols)
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ngithub.com/gin-gonic/gin\n\ntalentcore/pkg/domain\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", TransportImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "github.com/gin-gonic/gin" {
		t.Fatalf("unexpected violations %v err %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), fmt.Errorf("exit 1") }
	if _, out, err := transitiveDependencyViolations("./...", TransportImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure to surface")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var rec recordingFatal
	failIfViolations(&rec, "direct import", "layering", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(&rec, "direct import", "layering", []string{"x"})
	if !strings.Contains(rec.msg, "forbidden direct import detected (layering)") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
