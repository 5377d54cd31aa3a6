package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompileProjectWithImport(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "util.cob", `const factor = 4

const def scale(n: int) -> int:
    result n * factor
`)
	writeSource(t, dir, "main.cob", `import util

interface "demo":
    x = util.scale(3)
    y = util.factor
`)

	out, err := Compile(filepath.Join(dir, "main.cob"), DefaultConfig())
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	demo := seqByPath(t, out, "demo")
	vals := setValues(demo)
	want := []int64{12, 4}
	if len(vals) != len(want) {
		t.Fatalf("stored values = %v, want %v", vals, want)
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("stored[%d] = %d, want %d", i, vals[i], want[i])
		}
	}
}

func TestCompileModuleNotFound(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.cob", "import ghost\n")

	_, err := Compile(filepath.Join(dir, "main.cob"), DefaultConfig())
	d, ok := err.(*Diag)
	if !ok || d.Kind != ErrModuleNotFound {
		t.Errorf("error = %v, want ErrModuleNotFound", err)
	}
}

func TestCompileCircularImport(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.cob", "import b\n")
	writeSource(t, dir, "b.cob", "import a\n")
	writeSource(t, dir, "main.cob", "import a\n")

	_, err := Compile(filepath.Join(dir, "main.cob"), DefaultConfig())
	d, ok := err.(*Diag)
	if !ok || d.Kind != ErrCircularParse {
		t.Errorf("error = %v, want ErrCircularParse", err)
	}
}

func TestCompileModuleLoadedOnce(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "shared.cob", "const one = 1\n")
	writeSource(t, dir, "a.cob", "import shared\n")
	writeSource(t, dir, "b.cob", "import shared\n")
	writeSource(t, dir, "main.cob", `import a
import b
import shared

interface "demo":
    x = shared.one
`)

	out, err := Compile(filepath.Join(dir, "main.cob"), DefaultConfig())
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	vals := setValues(seqByPath(t, out, "demo"))
	if len(vals) != 1 || vals[0] != 1 {
		t.Errorf("stored values = %v, want [1]", vals)
	}
}

func TestCompileMissingFile(t *testing.T) {
	_, err := Compile(filepath.Join(t.TempDir(), "absent.cob"), DefaultConfig())
	d, ok := err.(*Diag)
	if !ok || d.Kind != ErrIo {
		t.Errorf("error = %v, want ErrIo", err)
	}
}

func TestCompileFullProgram(t *testing.T) {
	src := `const max_mobs = 3

entity Mob:
    hp: int
    virtual def hurt(amount: int):
        self.hp -= amount

entity Creeper extends Mob:
    fuse: int
    override def hurt(amount: int):
        self.hp -= amount
        self.fuse = 1

def heal(&target: int, const amount):
    target += amount

interface "game/tick":
    c = Creeper()
    c.hp = 20
    m: Mob = c
    m.hurt(5)
    heal(c.hp, 2)
    if c.hp > 10:
        /say still standing
`
	out := compileOut(t, src)
	text := allText(out)
	if !strings.Contains(text, "say still standing") {
		t.Errorf("guarded command missing:\n%s", text)
	}
	if _, ok := out.Interfaces["game/tick"]; !ok {
		t.Error("entry point missing from output")
	}
	for _, s := range out.Sequences {
		if s.Path() == "" {
			t.Error("sequence left without a path")
		}
	}
}
