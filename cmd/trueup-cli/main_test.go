package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gridtariff/trueup/pkg/types"
)

const testConstantsYAML = `version: TEST-ORDER-v1
order_date: "01.04.2022"
weights:
  cpi: "0.70"
  wpi: "0.30"
gain_sharing:
  utility: "2/3"
  consumer: "1/3"
loss_sharing:
  utility: "1"
  consumer: "0"
finance:
  base_lending_rate: "0.0850"
  spread: "0.02"
roe_rate: "0.155"
td_loss:
  default: 0.140
  trajectory:
    FY_2024-25: 0.145
atc_loss_target: 0.18
depreciation:
  method: Straight-Line
  asset_life_years: 25
growth_projection: "0.05"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunUsage(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Trueup CLI") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
	// stdlib flag stops at the first positional, so the documented
	// invocations must put flags first.
	for _, line := range []string{
		"trueup petition [--fy 2024-25] [--persist] [--config cfg.yaml] <petition_json_path>",
		"trueup verify [--deep] [--config cfg.yaml] <checksum>",
	} {
		if !strings.Contains(stderr.String(), line) {
			t.Fatalf("usage must document flags-first ordering, missing %q in %q", line, stderr.String())
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "unknown"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
}

func TestComputeControllableGain(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "compute",
		"--head", "O&M Expenses",
		"--approved", "150",
		"--actual", "120",
		"--verified",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}

	var res types.AuditResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Scenario != "O&M Expenses Gain Sharing" {
		t.Fatalf("unexpected scenario: %q", res.Scenario)
	}
	if res.VarianceAmount.String() != "30" {
		t.Fatalf("unexpected variance: %s", res.VarianceAmount)
	}
	if res.Checksum == "" {
		t.Fatalf("expected checksum in output")
	}
}

func TestComputeActualMissing(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "compute",
		"--head", "O&M Expenses",
		"--approved", "150",
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "not yet available") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestComputeUnverifiedActual(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "compute",
		"--head", "O&M Expenses",
		"--approved", "150",
		"--actual", "120",
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "zero-hallucination") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestComputeBadCategory(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "compute",
		"--head", "O&M Expenses",
		"--category", "controllable",
		"--approved", "150",
		"--actual", "120",
		"--verified",
	}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "invalid category") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestPetitionPersistAndVerify(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml",
		"db:\n  driver: sqlite\n  dsn: "+filepath.Join(dir, "ledger.db")+"\n")
	petitionPath := writeFile(t, dir, "petition.json", `{
  "financial_year": "2022-23",
  "items": [
    {"head": "O&M Expenses", "category": "Controllable", "sbu_code": "SBU-D",
     "approved": "150", "actual": "120", "is_human_verified": true},
    {"head": "Power Purchase", "category": "Uncontrollable", "sbu_code": "SBU-D",
     "approved": "400", "actual": "450", "is_human_verified": true}
  ]
}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "petition", "--config", cfgPath, "--persist", petitionPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "persisted report_id=") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}

	var report types.PetitionReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalItems != 2 {
		t.Fatalf("expected 2 items, got %d", report.TotalItems)
	}

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"trueup", "verify", "--config", cfgPath, report.LineItems[0].Checksum}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "valid=true") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"trueup", "verify", "--config", cfgPath, "--report", report.ReportID}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "valid=true report_id="+report.ReportID) {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestPetitionMissingFinancialYear(t *testing.T) {
	dir := t.TempDir()
	petitionPath := writeFile(t, dir, "petition.json", `{"items": []}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "petition", petitionPath}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "financial year is required") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVerifyUnknownChecksum(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "verify", "deadbeef"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "not found") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestConstantsShowDefault(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "constants", "show"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "KSERC-MYT-2022-27-v1.0") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestConstantsLint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "constants.yaml", testConstantsYAML)

	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "constants", "lint", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ok version=TEST-ORDER-v1 hash=sha256:") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestConstantsLintMissingArg(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "constants", "lint"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
}

func TestConstantsShowFromConfig(t *testing.T) {
	dir := t.TempDir()
	constantsPath := writeFile(t, dir, "constants.yaml", testConstantsYAML)
	cfgPath := writeFile(t, dir, "config.yaml",
		"constants_paths:\n  - "+constantsPath+"\nactive_version: TEST-ORDER-v1\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "constants", "show", "--config", cfgPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "TEST-ORDER-v1") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestOMEscalation(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "om", "--base", "1000", "--cpi", "0.05", "--wpi", "0.03"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"escalated_om": "1044"`) {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestInterest(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "interest", "--loan", "100000"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"normative_rate": "0.105"`) {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), `"normative_interest": "10500"`) {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestLineLoss(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code := run([]string{"trueup", "lineloss", "--fy", "2024-25", "--actual", "0.152"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"is_violation": true`) {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestMainExitCode(t *testing.T) {
	oldExit := exitFn
	oldArgs := os.Args
	defer func() {
		exitFn = oldExit
		os.Args = oldArgs
	}()

	var code int
	exitFn = func(c int) {
		code = c
	}
	os.Args = []string{"trueup"}

	main()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
