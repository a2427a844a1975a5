// Package app is the command-line adapter: it parses a command, opens a
// session, runs the operation and always locks the session before returning.
package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/secretvault/auth"
	"github.com/Hussein-Mazeh/secretvault/internal/audit"
	"github.com/Hussein-Mazeh/secretvault/internal/config"
	"github.com/Hussein-Mazeh/secretvault/internal/keyring"
	"github.com/Hussein-Mazeh/secretvault/internal/logging"
	"github.com/Hussein-Mazeh/secretvault/internal/session"
	"github.com/Hussein-Mazeh/secretvault/internal/vault"
	"github.com/Hussein-Mazeh/secretvault/krypto"
	"github.com/Hussein-Mazeh/secretvault/store"
)

// Version is reported by the version command.
const Version = "1.0.0"

type userError struct {
	msg string
}

func (e userError) Error() string    { return e.msg }
func (e userError) UserFacing() bool { return true }

func userErrorf(format string, args ...any) error {
	return userError{msg: fmt.Sprintf(format, args...)}
}

// Options is everything Run needs. Verbose only raises log output.
type Options struct {
	Verbose bool
	Args    []string
	Config  config.Config

	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Prompter Prompter

	// Passphrase, when set, is used instead of prompting for the current
	// passphrase.
	Passphrase string
}

type runner struct {
	opts  Options
	log   zerolog.Logger
	audit *audit.Log
	guard keyring.Guard
}

// Run executes one command.
func Run(ctx context.Context, opts Options) error {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Prompter == nil {
		opts.Prompter = TerminalPrompter{Out: opts.Stderr}
	}
	if len(opts.Args) == 0 {
		printUsage(opts.Stderr)
		return userErrorf("missing command")
	}

	r := &runner{
		opts: opts,
		log:  logging.New(opts.Config.Logging, opts.Verbose, opts.Stderr),
	}
	cmd, args := opts.Args[0], opts.Args[1:]
	r.log.Debug().Str("command", cmd).Str("vault", opts.Config.Vault.Path).Msg("starting")

	switch cmd {
	case "version":
		fmt.Fprintln(opts.Stdout, Version)
		return nil
	case "help", "-h", "--help":
		printUsage(opts.Stdout)
		return nil
	}

	if err := r.openSidecars(); err != nil {
		return err
	}
	defer r.closeSidecars()

	switch cmd {
	case "init":
		return r.cmdInit(ctx, args)
	case "put":
		return r.cmdPut(args)
	case "get":
		return r.cmdGet(args)
	case "delete", "rm":
		return r.cmdDelete(args)
	case "list", "ls":
		return r.cmdList(args)
	case "passwd":
		return r.cmdPasswd(ctx, args)
	case "verify":
		return r.cmdVerify(args)
	case "history":
		return r.cmdHistory(args)
	default:
		printUsage(opts.Stderr)
		return userErrorf("unknown command: %s", cmd)
	}
}

// openSidecars opens the audit log and rollback guard when enabled. Neither
// is required for the vault to work, so failures only warn.
func (r *runner) openSidecars() error {
	cfg := r.opts.Config
	if cfg.Vault.Audit {
		l, err := audit.Open(cfg.AuditFile())
		if err != nil {
			r.log.Warn().Err(err).Msg("audit log disabled")
		} else {
			r.audit = l
		}
	}
	if cfg.Vault.RollbackGuard {
		g, err := keyring.New()
		switch {
		case errors.Is(err, keyring.ErrUnsupported):
			r.log.Debug().Msg("rollback guard not available on this platform")
		case err != nil:
			r.log.Warn().Err(err).Msg("rollback guard disabled")
		default:
			r.guard = g
		}
	}
	return nil
}

func (r *runner) closeSidecars() {
	if r.audit != nil {
		if err := r.audit.Close(); err != nil {
			r.log.Warn().Err(err).Msg("close audit log")
		}
	}
}

func (r *runner) newSession() (*session.Session, error) {
	cfg := r.opts.Config
	opts := session.Options{
		Path:     cfg.Vault.Path,
		LockPath: cfg.LockFile(),
		Suite:    cfg.Suite(),
		KDF:      cfg.Argon2Params(),
		Policy:   cfg.Policy,
		Audit:    r.audit,
		Logger:   r.log,
	}
	// A nil keyring.Guard must stay a nil interface.
	if r.guard != nil {
		opts.Guard = r.guard
	}
	return session.New(opts)
}

func (r *runner) currentPassphrase(prompt string) ([]byte, error) {
	if r.opts.Passphrase != "" {
		return []byte(r.opts.Passphrase), nil
	}
	return r.opts.Prompter.ReadSecret(prompt)
}

// withUnlocked unlocks the vault, runs fn and locks again on every path.
func (r *runner) withUnlocked(fn func(s *session.Session) error) (err error) {
	s, err := r.newSession()
	if err != nil {
		return err
	}
	pw, err := r.currentPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	if err := s.Unlock(pw); err != nil {
		return err
	}
	defer func() {
		if lerr := s.Lock(); lerr != nil {
			err = errors.Join(err, lerr)
		}
	}()
	return fn(s)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func oneName(fs *flag.FlagSet, args []string, usage string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", userErrorf("invalid arguments; usage: %s", usage)
	}
	if fs.NArg() != 1 {
		return "", userErrorf("usage: %s", usage)
	}
	return fs.Arg(0), nil
}

func (r *runner) warn(v auth.Verdict) {
	for _, w := range v.Warnings {
		fmt.Fprintln(r.opts.Stderr, "warning:", w)
	}
}

func (r *runner) cmdInit(ctx context.Context, args []string) error {
	fs := newFlagSet("init")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return userErrorf("usage: secretvault init")
	}

	var (
		pw  []byte
		err error
	)
	if r.opts.Passphrase != "" {
		pw = []byte(r.opts.Passphrase)
	} else {
		pw, err = readConfirmed(r.opts.Prompter, "New passphrase: ", "Confirm passphrase: ")
		if err != nil {
			return err
		}
	}

	s, err := r.newSession()
	if err != nil {
		return err
	}
	verdict, err := s.Create(ctx, pw)
	if err != nil {
		return err
	}
	defer s.Lock()
	r.warn(verdict)

	hdr, err := s.Header()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.opts.Stderr, "created vault %s at %s\n", hdr.VaultID, s.Path())
	return nil
}

func (r *runner) cmdPut(args []string) error {
	fs := newFlagSet("put")
	fromStdin := fs.Bool("stdin", false, "read the value from stdin")
	name, err := oneName(fs, args, "secretvault put [-stdin] <name>")
	if err != nil {
		return err
	}
	if err := vault.ValidateName(name); err != nil {
		return err
	}

	var value []byte
	if *fromStdin {
		value, err = io.ReadAll(io.LimitReader(r.opts.Stdin, vault.MaxValueSize+2))
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		value = bytes.TrimSuffix(value, []byte("\n"))
	} else {
		value, err = readConfirmed(r.opts.Prompter, "Value: ", "Confirm value: ")
		if err != nil {
			return err
		}
	}
	defer krypto.Wipe(value)

	return r.withUnlocked(func(s *session.Session) error {
		if err := s.Put(name, value); err != nil {
			return err
		}
		fmt.Fprintf(r.opts.Stderr, "stored %s\n", name)
		return nil
	})
}

func (r *runner) cmdGet(args []string) error {
	name, err := oneName(newFlagSet("get"), args, "secretvault get <name>")
	if err != nil {
		return err
	}
	return r.withUnlocked(func(s *session.Session) error {
		value, err := s.Get(name)
		if err != nil {
			return err
		}
		defer krypto.Wipe(value)
		w := bufio.NewWriter(r.opts.Stdout)
		w.Write(value)
		w.WriteByte('\n')
		return w.Flush()
	})
}

func (r *runner) cmdDelete(args []string) error {
	name, err := oneName(newFlagSet("delete"), args, "secretvault delete <name>")
	if err != nil {
		return err
	}
	return r.withUnlocked(func(s *session.Session) error {
		if err := s.Delete(name); err != nil {
			return err
		}
		fmt.Fprintf(r.opts.Stderr, "deleted %s\n", name)
		return nil
	})
}

func (r *runner) cmdList(args []string) error {
	fs := newFlagSet("list")
	long := fs.Bool("l", false, "show timestamps")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return userErrorf("usage: secretvault list [-l]")
	}
	return r.withUnlocked(func(s *session.Session) error {
		entries, err := s.Entries()
		if err != nil {
			return err
		}
		if !*long {
			for _, e := range entries {
				fmt.Fprintln(r.opts.Stdout, e.Name)
			}
			return nil
		}
		tw := tabwriter.NewWriter(r.opts.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCREATED\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func (r *runner) cmdPasswd(ctx context.Context, args []string) error {
	fs := newFlagSet("passwd")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return userErrorf("usage: secretvault passwd")
	}
	return r.withUnlocked(func(s *session.Session) error {
		current, err := r.currentPassphrase("Current passphrase: ")
		if err != nil {
			return err
		}
		next, err := readConfirmed(r.opts.Prompter, "New passphrase: ", "Confirm new passphrase: ")
		if err != nil {
			krypto.Wipe(current)
			return err
		}
		verdict, err := s.ChangePassphrase(ctx, current, next)
		if err != nil {
			return err
		}
		r.warn(verdict)
		fmt.Fprintln(r.opts.Stderr, "passphrase changed")
		return nil
	})
}

func (r *runner) cmdVerify(args []string) error {
	fs := newFlagSet("verify")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return userErrorf("usage: secretvault verify")
	}
	return r.withUnlocked(func(s *session.Session) error {
		n, err := s.Verify()
		if err != nil {
			return err
		}
		hdr, err := s.Header()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.opts.Stdout, "vault %s: generation %d, %d entries authenticated\n", hdr.VaultID, hdr.Generation, n)

		if r.audit == nil {
			return nil
		}
		events, err := r.audit.Verify()
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		fmt.Fprintf(r.opts.Stdout, "audit log: %d events, chain intact\n", events)
		return nil
	})
}

// cmdHistory reads the vault id from the unauthenticated header, so it needs
// no passphrase.
func (r *runner) cmdHistory(args []string) error {
	fs := newFlagSet("history")
	limit := fs.Int("n", 20, "number of events")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return userErrorf("usage: secretvault history [-n N]")
	}
	if r.audit == nil {
		return userErrorf("audit log is disabled")
	}
	sealed, err := store.ReadSealed(r.opts.Config.Vault.Path)
	if err != nil {
		return err
	}
	events, err := r.audit.Events(sealed.Header.VaultID, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(r.opts.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tACTION\tNAME")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strconv.FormatInt(e.Seq, 10), e.At.Format(time.RFC3339), e.Action, e.Subject)
	}
	return tw.Flush()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, strings.TrimSpace(`
Usage: secretvault [-v] [-config file] [-vault path] <command>
Commands:
  init                  create a new vault
  put [-stdin] <name>   store or replace a secret
  get <name>            print a secret
  delete <name>         remove a secret
  list [-l]             list secret names
  passwd                change the master passphrase
  verify                authenticate every entry and the audit log
  history [-n N]        show recent audit events
  version`))
}
