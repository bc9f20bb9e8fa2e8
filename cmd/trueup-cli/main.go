package main

import (
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/config"
	"github.com/gridtariff/trueup/internal/crypto"
	"github.com/gridtariff/trueup/internal/engine"
	"github.com/gridtariff/trueup/internal/ledger"
	"github.com/gridtariff/trueup/internal/ledger/pgstore"
	"github.com/gridtariff/trueup/internal/ledger/sqlstore"
	"github.com/gridtariff/trueup/internal/regconst"
	"github.com/gridtariff/trueup/pkg/types"
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "compute":
		return handleCompute(args[2:], stdout, stderr)
	case "petition":
		return handlePetition(args[2:], stdout, stderr)
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	case "constants":
		return handleConstants(args[2:], stdout, stderr)
	case "om":
		return handleOM(args[2:], stdout, stderr)
	case "interest":
		return handleInterest(args[2:], stdout, stderr)
	case "lineloss":
		return handleLineLoss(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleCompute(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
	head := fs.String("head", "", "cost head name")
	category := fs.String("category", string(types.CategoryControllable), "variance category")
	sbu := fs.String("sbu", string(types.SBUGeneration), "strategic business unit code")
	approved := fs.String("approved", "", "approved amount")
	actual := fs.String("actual", "", "audited actual amount")
	verified := fs.Bool("verified", false, "actual has been human-verified")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	eng, _, err := buildEngine(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	approvedAmt, err := decimal.NewFromString(*approved)
	if err != nil {
		fmt.Fprintln(stderr, "approved:", err)
		return 2
	}
	params := types.CostInputParams{
		Head:            *head,
		Category:        *category,
		SBUCode:         *sbu,
		Approved:        approvedAmt,
		IsHumanVerified: *verified,
	}
	if *actual != "" {
		actualAmt, err := decimal.NewFromString(*actual)
		if err != nil {
			fmt.Fprintln(stderr, "actual:", err)
			return 2
		}
		params.Actual = &actualAmt
	}

	in, err := types.NewCostInput(params)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	res, err := eng.ComputeVariance(in)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return printJSON(stdout, stderr, res)
}

func handlePetition(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("petition", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
	fy := fs.String("fy", "", "financial year, e.g. 2024-25")
	persist := fs.Bool("persist", false, "persist the report and line audits to the configured ledger")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "petition requires <petition_json_path>")
		fs.Usage()
		return 2
	}

	cfg, eng, err := buildEngineWithConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	financialYear, inputs, err := loadPetitionFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *fy != "" {
		financialYear = *fy
	}
	if financialYear == "" {
		fmt.Fprintln(stderr, "financial year is required; set --fy or financial_year in the petition file")
		return 2
	}

	report, err := eng.ProcessPetition(financialYear, inputs)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *persist {
		if err := persistPetition(cfg, eng, report, inputs); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stderr, "persisted report_id=%s batch_checksum=%s\n", report.ReportID, report.BatchChecksum)
	}
	return printJSON(stdout, stderr, report)
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
	report := fs.Bool("report", false, "treat the argument as a report id instead of an audit checksum")
	deep := fs.Bool("deep", false, "re-run the computation instead of only checking the digest")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires <checksum|report_id>")
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer closeFn()

	if *report {
		rec, ok := store.GetReport(fs.Arg(0))
		if !ok {
			fmt.Fprintf(stderr, "report %s not found\n", fs.Arg(0))
			return 1
		}
		pub, err := verifyPublicKey(cfg)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		if err := ledger.VerifyReport(rec, pub); err != nil {
			fmt.Fprintf(stdout, "valid=false report_id=%s error=%s\n", rec.ReportID, err)
			return 1
		}
		fmt.Fprintf(stdout, "valid=true report_id=%s batch_checksum=%s\n", rec.ReportID, rec.BatchChecksum)
		return 0
	}

	rec, ok := store.GetAudit(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "audit %s not found\n", fs.Arg(0))
		return 1
	}
	if err := ledger.VerifyAudit(rec); err != nil {
		fmt.Fprintf(stdout, "valid=false checksum=%s error=%s\n", rec.Checksum, err)
		return 1
	}
	if *deep {
		if err := reverifyAudit(cfg, rec); err != nil {
			fmt.Fprintf(stdout, "valid=false checksum=%s error=%s\n", rec.Checksum, err)
			return 1
		}
	}
	fmt.Fprintf(stdout, "valid=true checksum=%s\n", rec.Checksum)
	return 0
}

func handleConstants(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "show":
		fs := flag.NewFlagSet("constants show", flag.ContinueOnError)
		fs.SetOutput(stderr)
		cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
		version := fs.String("version", "", "constants version (default: active)")
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		reg, err := buildRegistry(*cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		set := reg.Active()
		if *version != "" {
			got, ok := reg.Get(*version)
			if !ok {
				fmt.Fprintf(stderr, "constants version %s not registered\n", *version)
				return 1
			}
			set = got
		}
		return printJSON(stdout, stderr, set.Snapshot())
	case "lint":
		fs := flag.NewFlagSet("constants lint", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "constants lint requires <constants_path>")
			fs.Usage()
			return 2
		}
		set, err := regconst.Load(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "ok version=%s hash=%s\n", set.Version(), set.Hash())
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleOM(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("om", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
	base := fs.String("base", "", "base O&M amount")
	cpi := fs.String("cpi", "", "CPI change as a fraction, e.g. 0.05")
	wpi := fs.String("wpi", "", "WPI change as a fraction, e.g. 0.04")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	eng, _, err := buildEngine(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	baseAmt, cpiChg, wpiChg, err := parseThree(*base, *cpi, *wpi)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	return printJSON(stdout, stderr, eng.EscalateOM(baseAmt, cpiChg, wpiChg))
}

func handleInterest(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("interest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
	loan := fs.String("loan", "", "outstanding normative loan")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	eng, _, err := buildEngine(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	loanAmt, err := decimal.NewFromString(*loan)
	if err != nil {
		fmt.Fprintln(stderr, "loan:", err)
		return 2
	}
	return printJSON(stdout, stderr, eng.ComputeNormativeInterest(loanAmt))
}

func handleLineLoss(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("lineloss", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("TRUEUP_CONFIG"), "config file path")
	fy := fs.String("fy", "", "financial year, e.g. 2024-25")
	actual := fs.String("actual", "", "actual T&D loss as a fraction, e.g. 0.152")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	eng, _, err := buildEngine(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	actualLoss, err := decimal.NewFromString(*actual)
	if err != nil {
		fmt.Fprintln(stderr, "actual:", err)
		return 2
	}
	return printJSON(stdout, stderr, eng.ComputeLineLossEfficiency(*fy, actualLoss))
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func buildRegistry(cfgPath string) (*regconst.Registry, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return registryFromConfig(cfg)
}

func registryFromConfig(cfg config.Config) (*regconst.Registry, error) {
	reg := regconst.NewRegistry()
	for _, path := range cfg.ConstantsPaths {
		set, err := regconst.Load(path)
		if err != nil {
			return nil, fmt.Errorf("constants %s: %w", path, err)
		}
		if err := reg.Register(set); err != nil {
			return nil, fmt.Errorf("constants %s: %w", path, err)
		}
	}
	if cfg.ActiveVersion != "" {
		if err := reg.SetActive(cfg.ActiveVersion); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildEngine(cfgPath string) (*engine.Engine, config.Config, error) {
	cfg, eng, err := buildEngineWithConfig(cfgPath)
	return eng, cfg, err
}

func buildEngineWithConfig(cfgPath string) (config.Config, *engine.Engine, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	reg, err := registryFromConfig(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, engine.New(reg.Active()), nil
}

func openStore(cfg config.Config) (ledger.Store, func(), error) {
	switch cfg.DB.Driver {
	case "":
		return ledger.NewInMemoryStore(), func() {}, nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := pgstore.OpenPostgres(cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
}

func configuredSigner(cfg config.Config) (ledger.Signer, error) {
	if cfg.SigningKey.PrivateKeyPath == "" {
		return nil, nil
	}
	priv, _, err := crypto.LoadEd25519PrivateKey(cfg.SigningKey.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return crypto.NewSigner(cfg.SigningKey.KeyID, priv), nil
}

func verifyPublicKey(cfg config.Config) (ed25519.PublicKey, error) {
	if cfg.SigningKey.PublicKeyPath == "" {
		return nil, nil
	}
	pub, err := crypto.LoadEd25519PublicKey(cfg.SigningKey.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("verify key: %w", err)
	}
	return pub, nil
}

func persistPetition(cfg config.Config, eng *engine.Engine, report types.PetitionReport, inputs []types.CostInput) error {
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	signer, err := configuredSigner(cfg)
	if err != nil {
		return err
	}

	ruleset, err := ledger.NewRulesetRecord(eng.Constants(), report.Timestamp)
	if err != nil {
		return err
	}
	reportRec, err := ledger.NewReportRecord(report, signer)
	if err != nil {
		return err
	}
	auditRecs := make([]ledger.AuditRecord, 0, len(report.LineItems))
	for _, res := range report.LineItems {
		rec, err := ledger.NewAuditRecord(res)
		if err != nil {
			return err
		}
		auditRecs = append(auditRecs, rec)
	}

	return store.WithTx(func(tx ledger.Tx) error {
		if err := tx.PutRuleset(ruleset); err != nil {
			return err
		}
		for _, rec := range auditRecs {
			if err := tx.PutAudit(rec); err != nil {
				return err
			}
		}
		return tx.PutReport(reportRec)
	})
}

func reverifyAudit(cfg config.Config, rec ledger.AuditRecord) error {
	reg, err := registryFromConfig(cfg)
	if err != nil {
		return err
	}
	set, ok := reg.Get(rec.EngineVersion)
	if !ok {
		return fmt.Errorf("constants version %s not registered; cannot re-run", rec.EngineVersion)
	}
	var res types.AuditResult
	if err := json.Unmarshal(rec.ResultJSON, &res); err != nil {
		return err
	}
	return engine.New(set).Reverify(res)
}

type petitionLine struct {
	Head            string           `json:"head"`
	Category        string           `json:"category"`
	SBUCode         string           `json:"sbu_code"`
	Approved        decimal.Decimal  `json:"approved"`
	Actual          *decimal.Decimal `json:"actual"`
	AnomalyScore    *float64         `json:"anomaly_score"`
	EvidencePage    *int             `json:"evidence_page"`
	IsHumanVerified bool             `json:"is_human_verified"`
}

type petitionFile struct {
	FinancialYear string         `json:"financial_year"`
	Items         []petitionLine `json:"items"`
}

func loadPetitionFile(path string) (string, []types.CostInput, error) {
	// #nosec G304 -- path is operator-provided input path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var doc petitionFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", nil, fmt.Errorf("petition file: %w", err)
	}

	inputs := make([]types.CostInput, 0, len(doc.Items))
	for i, line := range doc.Items {
		in, err := types.NewCostInput(types.CostInputParams{
			Head:            line.Head,
			Category:        line.Category,
			SBUCode:         line.SBUCode,
			Approved:        line.Approved,
			Actual:          line.Actual,
			AnomalyScore:    line.AnomalyScore,
			EvidencePage:    line.EvidencePage,
			IsHumanVerified: line.IsHumanVerified,
		})
		if err != nil {
			return "", nil, fmt.Errorf("petition item %d: %w", i, err)
		}
		inputs = append(inputs, in)
	}
	return doc.FinancialYear, inputs, nil
}

func parseThree(base, cpi, wpi string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	baseAmt, err := decimal.NewFromString(base)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("base: %w", err)
	}
	cpiChg, err := decimal.NewFromString(cpi)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("cpi: %w", err)
	}
	wpiChg, err := decimal.NewFromString(wpi)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("wpi: %w", err)
	}
	return baseAmt, cpiChg, wpiChg, nil
}

func printJSON(stdout io.Writer, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Trueup CLI

Usage (flags come before positional arguments):
  trueup compute --head NAME --approved AMT [--actual AMT] [--category C] [--sbu S] [--verified]
  trueup petition [--fy 2024-25] [--persist] [--config cfg.yaml] <petition_json_path>
  trueup verify [--deep] [--config cfg.yaml] <checksum>
  trueup verify --report [--config cfg.yaml] <report_id>
  trueup constants show [--version V] [--config cfg.yaml]
  trueup constants lint <constants_path>
  trueup om --base AMT --cpi 0.05 --wpi 0.04
  trueup interest --loan AMT
  trueup lineloss --fy 2024-25 --actual 0.152
`)
}
