// Command credsfetcherd is the gMSA credential lifecycle daemon: a renewal
// scheduler running forever under `daemon`, plus an operator CLI
// (`create-lease`, `delete-lease`, `list-leases`) that calls directly into
// the engine package. There is no RPC/IPC transport here — these
// subcommands stand in for it.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/miekg/dns"
	"github.com/urfave/cli/v3"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/config"
	"github.com/credsfetcher/credsfetcherd/internal/dclocate"
	"github.com/credsfetcher/credsfetcherd/internal/engine"
	"github.com/credsfetcher/credsfetcherd/internal/kerbauth"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/leasestore"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
	"github.com/credsfetcher/credsfetcherd/internal/metrics"
	"github.com/credsfetcher/credsfetcherd/internal/probe"
	"github.com/credsfetcher/credsfetcherd/internal/renewal"
	"github.com/credsfetcher/credsfetcherd/internal/secretbroker"
)

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func run(ctx context.Context, args []string) int {
	log := logx.New("credsfetcherd")

	app := &cli.Command{
		Name:  "credsfetcherd",
		Usage: "gMSA credential lifecycle daemon",
		Commands: []*cli.Command{
			daemonCommand(log),
			createLeaseCommand(log),
			deleteLeaseCommand(log),
			listLeasesCommand(log),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logx.Err(log, "command failed", "error", err.Error())
		return exitCodeFor(err)
	}
	return 0
}

// commonFlags returns the config/broker flags every subcommand that talks
// to the engine or the secret broker needs. cli/v3 flags are per-command,
// not inherited from the root, so each leaf command includes these.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Value: config.DefaultConfigPath, Usage: "path to the ecs.config file"},
		&cli.StringFlag{Name: "broker", Value: "sdk", Usage: "secret broker backend: sdk or cli"},
		&cli.StringFlag{Name: "aws-region", Usage: "AWS region override for the secret broker"},
	}
}

// exitCodeFor maps the eight-kind error taxonomy down to the daemon's three
// documented non-zero exit codes.
func exitCodeFor(err error) int {
	se, ok := cferrors.As(err)
	if !ok {
		return 3
	}
	switch se.Kind() {
	case cferrors.KindInvalidInput, cferrors.KindToolMissing:
		return 1
	case cferrors.KindAuthFailure:
		return 2
	default:
		return 3
	}
}

// daemonCommand runs the renewal scheduler forever, serving Prometheus
// metrics on a loopback port, until SIGINT/SIGTERM.
func daemonCommand(log logx.Logger) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run the renewal scheduler until terminated",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "metrics-addr", Value: "127.0.0.1:9090", Usage: "address to serve /metrics on"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			if err := probe.Verify(ctx, probe.Options{DecoderPath: cfg.DecoderPath}); err != nil {
				return err
			}

			store := leasestore.New(cfg.KrbRoot, kerbtypes.SystemClock{})
			broker, err := buildBroker(ctx, cmd)
			if err != nil {
				return err
			}

			sched := renewal.New(store, kerbtypes.SystemClock{}, log, renewal.Config{
				TickInterval:  cfg.RenewTickInterval,
				RenewWindow:   cfg.RenewWindow,
				MaxConcurrent: cfg.MaxConcurrentRenewals,
				DecoderPath:   cfg.DecoderPath,
				GMSAOU:        cfg.GMSAOU,
				GMSABaseDN:    cfg.GMSABaseDN,
				DCOverride:    cfg.DomainControllerOverride,
				Nameserver:    cfg.Nameserver,
				SecretID:      cfg.GMSASecretName,
				Broker:        broker,
				Resolver:      dnsClientAdapter{&dns.Client{}},
			})

			metricsSrv := metrics.NewServer(cmd.String("metrics-addr"))
			addr, err := metricsSrv.Start()
			if err != nil {
				return cferrors.Wrap(cferrors.KindIOError, "metrics server failed to start", err)
			}
			logx.Info(log, "metrics server listening", "addr", addr.String())

			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go sched.Start(runCtx)
			<-runCtx.Done()

			sched.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Stop(shutdownCtx)
		},
	}
}

func createLeaseCommand(log logx.Logger) *cli.Command {
	return &cli.Command{
		Name:  "create-lease",
		Usage: "materialize a Kerberos ticket for a gMSA principal",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "lease-id", Required: true},
			&cli.StringFlag{Name: "domain", Required: true},
			&cli.StringFlag{Name: "service-account", Required: true, Usage: "gMSA account name"},
			&cli.StringFlag{Name: "mode", Value: "machine", Usage: "machine | user-broker | user-direct"},
			&cli.StringFlag{Name: "username", Usage: "required for mode=user-direct"},
			&cli.StringFlag{Name: "domainless-user", Usage: "records this lease as broker-user-backed for renewal"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			e, err := buildEngine(ctx, cmd, cfg, log)
			if err != nil {
				return err
			}

			mode, err := parseMode(cmd.String("mode"))
			if err != nil {
				return err
			}

			req := engine.CreateLeaseRequest{
				LeaseID:            cmd.String("lease-id"),
				Domain:             cmd.String("domain"),
				ServiceAccountName: cmd.String("service-account"),
				Mode:               mode,
				Username:           cmd.String("username"),
				DomainlessUser:     cmd.String("domainless-user"),
			}
			if mode == kerbauth.ModeUserDirect {
				password, err := readPasswordFromStdin()
				if err != nil {
					return err
				}
				req.Password = password
			}

			md, err := e.CreateLease(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(md)
		},
	}
}

func deleteLeaseCommand(log logx.Logger) *cli.Command {
	return &cli.Command{
		Name:  "delete-lease",
		Usage: "destroy every credential cache for a lease and remove it",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "lease-id", Required: true},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			e, err := buildEngine(ctx, cmd, cfg, log)
			if err != nil {
				return err
			}

			destroyed, err := e.DeleteLease(ctx, cmd.String("lease-id"))
			if err != nil {
				return err
			}
			return printJSON(destroyed)
		},
	}
}

func listLeasesCommand(log logx.Logger) *cli.Command {
	return &cli.Command{
		Name:  "list-leases",
		Usage: "list every lease's metadata, or one lease's with --lease-id",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "lease-id"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			e, err := buildEngine(ctx, cmd, cfg, log)
			if err != nil {
				return err
			}

			if leaseID := cmd.String("lease-id"); leaseID != "" {
				md, err := e.GetLease(leaseID)
				if err != nil {
					return err
				}
				return printJSON(md)
			}
			all, err := e.ListLeases()
			if err != nil {
				return err
			}
			return printJSON(all)
		},
	}
}

func parseMode(s string) (kerbauth.Mode, error) {
	switch s {
	case "machine":
		return kerbauth.ModeMachine, nil
	case "user-broker":
		return kerbauth.ModeUserFromBroker, nil
	case "user-direct":
		return kerbauth.ModeUserDirect, nil
	default:
		return 0, cferrors.New(cferrors.KindInvalidInput, "unknown mode: "+s)
	}
}

// readPasswordFromStdin reads a single line from stdin rather than taking
// the password as a flag, so it never appears in a process listing or
// shell history.
func readPasswordFromStdin() (*kerbtypes.CredentialSecret, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, cferrors.Wrap(cferrors.KindIOError, "failed to read password from stdin", err)
	}
	return kerbtypes.NewCredentialSecret([]byte(strings.TrimRight(line, "\r\n"))), nil
}

func printJSON(v interface{}) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cferrors.Wrap(cferrors.KindIOError, "failed to marshal output", err)
	}
	fmt.Println(string(body))
	return nil
}

// buildEngine wires an engine.Engine from resolved config and CLI flags.
func buildEngine(ctx context.Context, cmd *cli.Command, cfg config.Config, log logx.Logger) (*engine.Engine, error) {
	broker, err := buildBroker(ctx, cmd)
	if err != nil {
		return nil, err
	}

	store := leasestore.New(cfg.KrbRoot, kerbtypes.SystemClock{})
	return engine.New(store, log, engine.Config{
		DecoderPath: cfg.DecoderPath,
		KeytabPath:  cfg.KeytabPath,
		GMSAOU:      cfg.GMSAOU,
		GMSABaseDN:  cfg.GMSABaseDN,
		DCOverride:  cfg.DomainControllerOverride,
		Nameserver:  cfg.Nameserver,
		SecretID:    cfg.GMSASecretName,
		Broker:      broker,
		Resolver:    dnsClientAdapter{&dns.Client{}},
	}), nil
}

// buildBroker selects the SDK-backed or CLI-backed secret broker per the
// --broker flag, defaulting to the AWS SDK's own credential chain.
func buildBroker(ctx context.Context, cmd *cli.Command) (secretbroker.Broker, error) {
	switch cmd.String("broker") {
	case "cli":
		return secretbroker.NewCLIBroker("aws", cmd.String("aws-region")), nil
	case "sdk", "":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, cferrors.Wrap(cferrors.KindIOError, "failed to load AWS SDK default config", err)
		}
		return secretbroker.NewSDKBroker(secretsmanager.NewFromConfig(awsCfg)), nil
	default:
		return nil, cferrors.New(cferrors.KindInvalidInput, "unknown broker backend: "+cmd.String("broker"))
	}
}

// dnsClientAdapter adapts *dns.Client's three-return-value Exchange to the
// two-return-value dclocate.Resolver interface.
type dnsClientAdapter struct{ client *dns.Client }

func (a dnsClientAdapter) Exchange(m *dns.Msg, addr string) (*dns.Msg, error) {
	resp, _, err := a.client.Exchange(m, addr)
	return resp, err
}

var _ dclocate.Resolver = dnsClientAdapter{}
