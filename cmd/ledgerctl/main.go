// Command ledgerctl performs offline operator tasks against the ledger
// database: registering users and moving backups in and out.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/text/language"

	"smartaccounting/internal/auth"
	"smartaccounting/internal/backup"
	"smartaccounting/internal/cli"
	"smartaccounting/internal/config"
	"smartaccounting/internal/core"
	applog "smartaccounting/internal/log"
	"smartaccounting/internal/services"
	"smartaccounting/internal/storage"
)

const usage = `Usage: ledgerctl [--db PATH] [--backup-dir DIR] <command> [flags]

Commands:
  register  create a user account
  export    write a user's backup file
  import    replace a user's ledger from a backup file
  list      print a user's records
`

var errUsage = errors.New("usage")

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	applog.Setup(applog.ComponentCLI, cfg.Level())

	err := run(context.Background(), cfg, os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, errUsage), errors.Is(err, pflag.ErrHelp):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	repo    *storage.SQLiteRepository
	backups *services.BackupService
	locale  language.Tag
	out     io.Writer
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("ledgerctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	dbPath := global.String("db", cfg.SQLiteDBPath, "ledger SQLite database")
	backupDir := global.String("backup-dir", cfg.BackupDir, "directory holding backup files")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]

	commands := map[string]func(context.Context, *app, []string) error{
		"register": cmdRegister,
		"export":   cmdExport,
		"import":   cmdImport,
		"list":     cmdList,
	}
	handler, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	files, err := backup.NewFileStore(*backupDir)
	if err != nil {
		return err
	}

	return handler(ctx, &app{
		repo:    repo,
		backups: services.NewBackupService(repo, files, nil, nil),
		locale:  cfg.Language(),
		out:     out,
	}, cmdArgs)
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.StringP("user", "u", "", "user id")
	return fs, user
}

func requireUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("%w: --user is required", errUsage)
	}
	return nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs, user := newFlagSet("register")
	password := fs.StringP("password", "p", os.Getenv("LEDGER_PASSWORD"), "password (defaults to $LEDGER_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	// Registration never touches sessions, so no revocation store or secret.
	if err := auth.NewService(a.repo, nil, "", 0).Register(ctx, *user, *password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s\n", strings.TrimSpace(*user))
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs, user := newFlagSet("export")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	res, err := a.backups.Export(ctx, *user)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d records to %s\n", res.Count, res.FileName)
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs, user := newFlagSet("import")
	file := fs.StringP("file", "f", "", "backup file to import (defaults to the user's file in --backup-dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}

	var res services.ImportResult
	var err error
	if *file != "" {
		data, readErr := os.ReadFile(*file)
		if readErr != nil {
			return readErr
		}
		res, err = a.backups.ImportData(ctx, *user, data)
	} else {
		res, err = a.backups.Import(ctx, *user)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %d records (%d skipped)\n", res.Imported, res.Skipped)
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs, user := newFlagSet("list")
	typ := fs.String("type", "", "income or expense")
	category := fs.String("category", "", "category name")
	start := fs.String("start", "", "first day, YYYY-MM-DD")
	end := fs.String("end", "", "last day, YYYY-MM-DD")
	sort := fs.String("sort", string(core.SortNewest), "newest, oldest, amount_desc or amount_asc")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}

	f, err := listFilter(*typ, *category, *start, *end, *sort)
	if err != nil {
		return err
	}
	recs, err := a.repo.ListRecords(ctx, *user, f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tNOTE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Date, r.Type, r.Category, core.FormatMoney(r.Amount, a.locale), r.Note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d records\n", len(recs))
	return nil
}

func listFilter(typ, category, start, end, sort string) (core.Filter, error) {
	var f core.Filter
	if !core.IsAll(typ) {
		t, err := core.ParseEntryType(typ)
		if err != nil {
			return core.Filter{}, err
		}
		f.Type = t
	}
	if !core.IsAll(category) {
		f.Category = strings.TrimSpace(category)
	}
	var err error
	if start != "" {
		if f.Range.Start, err = core.ParseDate(start); err != nil {
			return core.Filter{}, err
		}
	}
	if end != "" {
		if f.Range.End, err = core.ParseDate(end); err != nil {
			return core.Filter{}, err
		}
	}
	if f.Sort, err = core.ParseSortOrder(sort); err != nil {
		return core.Filter{}, err
	}
	return f, f.Validate()
}
