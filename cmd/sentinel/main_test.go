package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("sentinel %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestImportAndStats(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "sentinel.db"))
	t.Setenv("LOG_LEVEL", "error")

	csvPath := filepath.Join(dir, "recs.csv")
	sheet := "Stock Name,Ticker,Entry Min,Entry Max,Target,Stoploss/Exit Price,Date of Coverage\n" +
		"Tata Consultancy,TCS,3500,3600,4000,3400,12 Jan\n"
	if err := os.WriteFile(csvPath, []byte(sheet), 0o644); err != nil {
		t.Fatal(err)
	}

	if out := execute(t, "import", csvPath); !strings.Contains(out, "created=1 skipped=0") {
		t.Errorf("unexpected import output: %s", out)
	}
	out := execute(t, "stats")
	if !strings.Contains(out, "total=1 active=1") || !strings.Contains(out, "TCS") {
		t.Errorf("unexpected stats output: %s", out)
	}
}

func TestSubcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "refresh", "promote", "stats", "lookup", "import"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %s", name)
		}
	}
}
